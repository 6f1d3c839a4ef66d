package sop

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/kedaiservis/repair-service/internal/model"
)

// DefaultMenuFooter is appended to every customer-facing reply so the quick
// menu shortcuts stay discoverable throughout the conversation.
const DefaultMenuFooter = `📲 Pilihan pantas: balas 1 = Status semasa, 2 = Salinan invois, 3 = Arahan pickup. Untuk kelulusan, balas "setuju" atau "tak setuju". Perlu bantuan manusia? Balas 4.`

// FormatterConfig carries the localizable pieces of the reply templates.
type FormatterConfig struct {
	MenuFooter     string
	CurrencyLocale string
	CurrencySymbol string
}

func DefaultFormatterConfig() FormatterConfig {
	return FormatterConfig{
		MenuFooter:     DefaultMenuFooter,
		CurrencyLocale: "ms-MY",
		CurrencySymbol: "RM",
	}
}

// Formatter produces the reply text and next conversational stage for every
// command/ticket-status combination. All methods are pure.
type Formatter struct {
	footer  string
	symbol  string
	printer *message.Printer
}

func NewFormatter(cfg FormatterConfig) *Formatter {
	if cfg.MenuFooter == "" {
		cfg.MenuFooter = DefaultMenuFooter
	}
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "RM"
	}
	tag, err := language.Parse(cfg.CurrencyLocale)
	if err != nil {
		tag = language.MustParse("ms-MY")
	}
	return &Formatter{
		footer:  cfg.MenuFooter,
		symbol:  cfg.CurrencySymbol,
		printer: message.NewPrinter(tag),
	}
}

func (f *Formatter) MenuFooter() string { return f.footer }

// FormatCurrency renders a monetary amount in the configured locale.
// A nil amount yields nil so callers can omit the line entirely instead of
// rendering "0".
func (f *Formatter) FormatCurrency(value *float64) *string {
	if value == nil {
		return nil
	}
	formatted := f.printer.Sprintf("%s%v", f.symbol,
		number.Decimal(*value, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	return &formatted
}

func (f *Formatter) withFooter(text string) string {
	return strings.TrimSpace(text + " " + f.footer)
}

func greeting(customerName *string) string {
	if customerName == nil {
		return ""
	}
	if name := strings.TrimSpace(*customerName); name != "" {
		return name + ", "
	}
	return ""
}

// Reply couples a formatted message with the conversational stage it leaves
// the session in.
type Reply struct {
	Stage Stage
	Text  string
}

// StatusSummaryContext is the input for a ticket status summary reply.
type StatusSummaryContext struct {
	TicketNumber string
	Status       model.TicketStatus
	CustomerName *string
}

// StatusSummary renders the per-status summary template.
func (f *Formatter) StatusSummary(ctx StatusSummaryContext) Reply {
	ticketLabel := "tiket #" + ctx.TicketNumber
	prefix := greeting(ctx.CustomerName)

	var stage Stage
	var text string
	switch ctx.Status {
	case model.TicketStatusIntake:
		stage = StageIntakeAck
		text = prefix + ticketLabel + " telah diterima dan kami sedang menjadualkan diagnosis awal."
	case model.TicketStatusDiagnosed:
		stage = StageDiagnosisSummary
		text = prefix + "pasukan teknikal kami sedang menyiapkan ringkasan diagnosis untuk " + ticketLabel + ". Anda akan menerima butiran sekejap lagi."
	case model.TicketStatusAwaitingApproval:
		stage = StageAwaitingApproval
		text = prefix + `kami sedang menunggu kelulusan anda untuk ` + ticketLabel + `. Balas "setuju" untuk teruskan atau "tak setuju" jika mahu menangguhkan.`
	case model.TicketStatusApproved:
		stage = StageRepairUpdates
		text = prefix + "kelulusan bagi " + ticketLabel + " diterima. Kami sedang menempah alat ganti dan akan berkongsi kemas kini pembaikan."
	case model.TicketStatusRepairing:
		stage = StageRepairUpdates
		text = prefix + "pembaikan untuk " + ticketLabel + " sedang dijalankan. Kami akan maklumkan sebarang kemajuan penting."
	case model.TicketStatusDone:
		stage = StageDoneInvoice
		text = prefix + ticketLabel + " telah siap dan invois tersedia untuk semakan. Balas 3 jika anda perlukan arahan pengambilan."
	case model.TicketStatusPickedUp:
		stage = StagePickupComplete
		text = prefix + ticketLabel + " telah diambil. Terima kasih kerana mempercayai kami! Kongsikan maklum balas anda bila-bila masa."
	case model.TicketStatusRejected:
		stage = StageAwaitingApproval
		text = prefix + "permintaan pembaikan untuk " + ticketLabel + " telah dihentikan mengikut arahan anda. Hubungi kami jika mahu membuat perubahan."
	default:
		stage = StageRepairUpdates
		text = prefix + "kami sedang menyemak status " + ticketLabel + "."
	}

	return Reply{Stage: stage, Text: f.withFooter(text)}
}

// ApprovalAccepted renders the confirmation sent right after a customer
// approves the pending estimate.
func (f *Formatter) ApprovalAccepted(ticketNumber string, customerName *string, estimatedCost *string) string {
	thanks := "Terima kasih!"
	if customerName != nil {
		if name := strings.TrimSpace(*customerName); name != "" {
			thanks = "Terima kasih " + name + "!"
		}
	}
	costPart := ""
	if estimatedCost != nil {
		costPart = " Anggaran kos kekal pada " + *estimatedCost + "."
	}
	return f.withFooter(thanks + " Kelulusan anda untuk tiket #" + ticketNumber +
		" telah direkodkan. Pasukan kami akan mula pembaikan serta berkongsi kemas kini penting melalui WhatsApp." + costPart)
}

// ApprovalRejected renders the confirmation after a customer declines.
func (f *Formatter) ApprovalRejected(ticketNumber string, customerName *string) string {
	prefix := "Baik,"
	if customerName != nil {
		if name := strings.TrimSpace(*customerName); name != "" {
			prefix = "Baik " + name + ","
		}
	}
	return f.withFooter(prefix + " kami hentikan pembaikan untuk tiket #" + ticketNumber +
		" seperti permintaan anda. Hubungi kami bila-bila masa jika mahu menukar keputusan.")
}

// InvoiceSummaryContext is the input for an invoice summary reply. Number is
// nil when no invoice exists for the ticket yet.
type InvoiceSummaryContext struct {
	TicketNumber  string
	InvoiceNumber *string
	InvoiceTotal  *string
	InvoiceStatus *string
}

// InvoiceSummary renders the invoice summary, with a graceful branch when the
// invoice is not ready yet.
func (f *Formatter) InvoiceSummary(ctx InvoiceSummaryContext) Reply {
	if ctx.InvoiceNumber == nil {
		return Reply{
			Stage: StageDoneInvoice,
			Text: f.withFooter("Invois untuk tiket #" + ctx.TicketNumber +
				" belum tersedia lagi. Kami akan maklumkan sebaik sahaja ia siap."),
		}
	}

	parts := []string{"Invois #" + *ctx.InvoiceNumber + " untuk tiket #" + ctx.TicketNumber + " sudah tersedia."}
	if ctx.InvoiceTotal != nil {
		parts = append(parts, "Jumlah perlu dibayar: "+*ctx.InvoiceTotal+".")
	}
	if ctx.InvoiceStatus != nil {
		parts = append(parts, "Status bayaran terkini: "+*ctx.InvoiceStatus+".")
	}
	return Reply{Stage: StageDoneInvoice, Text: f.withFooter(strings.Join(parts, " "))}
}

// PickupInstructionsContext is the input for a pickup instructions reply.
type PickupInstructionsContext struct {
	TicketNumber  string
	Status        model.TicketStatus
	CustomerName  *string
	InvoiceStatus *string
	InvoiceTotal  *string
}

// PickupInstructions branches on the ticket status: ready, already collected,
// still awaiting approval, halted, or still in progress.
func (f *Formatter) PickupInstructions(ctx PickupInstructionsContext) Reply {
	prefix := greeting(ctx.CustomerName)
	ticketLabel := "tiket #" + ctx.TicketNumber

	switch ctx.Status {
	case model.TicketStatusDone:
		invoicePart := ""
		if ctx.InvoiceTotal != nil {
			invoicePart = " Jumlah invois: " + *ctx.InvoiceTotal
			if ctx.InvoiceStatus != nil {
				invoicePart += " (" + *ctx.InvoiceStatus + ")"
			}
			invoicePart += "."
		}
		return Reply{
			Stage: StagePickupReady,
			Text: f.withFooter(prefix + "peranti untuk " + ticketLabel +
				" sedia untuk diambil di kaunter kami. Bawa tiket ini semasa pengambilan." + invoicePart),
		}
	case model.TicketStatusPickedUp:
		return Reply{
			Stage: StagePickupComplete,
			Text: f.withFooter(prefix + "terima kasih kerana mengambil semula peranti bagi " + ticketLabel +
				". Kami hargai jika anda boleh tinggalkan review apabila ada masa."),
		}
	case model.TicketStatusAwaitingApproval:
		return Reply{
			Stage: StageAwaitingApproval,
			Text: f.withFooter(prefix + "kami masih menunggu kelulusan anda untuk " + ticketLabel +
				`. Balas "setuju" untuk kami teruskan atau "tak setuju" jika mahu menangguhkan.`),
		}
	case model.TicketStatusRejected:
		return Reply{
			Stage: StageAwaitingApproval,
			Text: f.withFooter(prefix + "pembaikan untuk " + ticketLabel +
				" telah dihentikan mengikut arahan anda. Hubungi kami jika mahu mengaktifkan semula tiket."),
		}
	}

	progressLabel := "sedang diproses"
	switch ctx.Status {
	case model.TicketStatusRepairing:
		progressLabel = "sedang dibaiki"
	case model.TicketStatusApproved:
		progressLabel = "dijadualkan untuk dibaiki"
	}
	return Reply{
		Stage: StageRepairUpdates,
		Text: f.withFooter(prefix + "peranti untuk " + ticketLabel +
			" belum sedia untuk pickup lagi — statusnya " + progressLabel +
			". Kami akan maklumkan sebaik sahaja siap."),
	}
}

// SupportHandoff renders the human hand-off acknowledgement.
func (f *Formatter) SupportHandoff(customerName *string) string {
	prefix := "Baik,"
	if customerName != nil {
		if name := strings.TrimSpace(*customerName); name != "" {
			prefix = "Baik " + name + ","
		}
	}
	return f.withFooter(prefix + " kami akan maklumkan staf kami untuk menghubungi anda secepat mungkin.")
}

// NoTicket is the fallback when the sender has no resolvable ticket. It is the
// one reply without the menu footer: the shortcuts would be dead ends.
func (f *Formatter) NoTicket() string {
	return "Maaf, kami tidak menemui tiket aktif yang berkait dengan nombor ini. Sila hubungi kaunter kami untuk bantuan lanjut."
}

// UnknownCommand is the fallback for unclassifiable input.
func (f *Formatter) UnknownCommand() string {
	return f.withFooter("Maaf, kami tidak pasti permintaan anda.")
}
