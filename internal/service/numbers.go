package service

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kedaiservis/repair-service/internal/model"
)

const ticketNumberPrefix = "TKT"

// GenerateTicketNumber produces a human-quotable document number:
// TKT-YYYYMMDD-XXXXXXXX with a random hex suffix.
func GenerateTicketNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return fmt.Sprintf("%s-%s-%s", ticketNumberPrefix, now.Format("20060102"), suffix)
}

// nextInvoiceNumber allocates the next sequential invoice number for the given
// year inside the caller's transaction: INV-YYYY-NNNNN. The unique index on
// (number_year, sequence) makes concurrent allocations fail loudly instead of
// silently duplicating.
func nextInvoiceNumber(tx *gorm.DB, year int) (string, int, error) {
	var maxSequence int64
	err := tx.Model(&model.Invoice{}).
		Where("number_year = ?", year).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSequence).Error
	if err != nil {
		return "", 0, err
	}
	sequence := int(maxSequence) + 1
	return fmt.Sprintf("INV-%d-%05d", year, sequence), sequence, nil
}
