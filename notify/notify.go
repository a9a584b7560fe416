/*
notify.go - Alert delivery adapters

PURPOSE:
  Implements attendance.Notifier for the scanner and a punch receipt mailer
  for the HTTP ingestion path.

ADAPTERS:
  LogNotifier   Writes every alert to the structured log.
  MailNotifier  Sends alerts over SMTP (gomail). Absence and excess-hours
                alerts go to the company HR address; forgotten-exit alerts go
                to the worker with HR in copy.
  Multi         Fans out to several notifiers and joins their errors.

SEE ALSO:
  - attendance/scanner.go: the only producer of alerts
  - config/config.go: [mail] section
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/warp/punchclock/attendance"
)

// =============================================================================
// LOG
// =============================================================================

// LogNotifier records alerts in the log only.
type LogNotifier struct {
	logger attendance.Logger
}

func NewLogNotifier(logger attendance.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, a attendance.Alert) error {
	args := []any{"kind", a.Kind, "worker", a.Worker.ID, "date", a.Date.String()}
	if a.Company != nil {
		args = append(args, "company", a.Company.ID)
	}
	if a.PunchID != nil {
		args = append(args, "punch", *a.PunchID)
	}
	if a.Detail != "" {
		args = append(args, "detail", a.Detail)
	}
	n.logger.Warn("attendance alert", args...)
	return nil
}

// =============================================================================
// MULTI
// =============================================================================

// Multi delivers to every notifier even when one fails.
type Multi []attendance.Notifier

func (m Multi) Notify(ctx context.Context, a attendance.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// MAIL
// =============================================================================

// Sender is the part of *gomail.Dialer the notifier needs.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailNotifier turns alerts and punch receipts into e-mails.
type MailNotifier struct {
	sender Sender
	from   string
	loc    *time.Location
	logger attendance.Logger
}

// NewDialer builds the SMTP dialer from plain settings.
func NewDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func NewMailNotifier(sender Sender, from string, loc *time.Location, logger attendance.Logger) *MailNotifier {
	return &MailNotifier{sender: sender, from: from, loc: loc, logger: logger}
}

// ErrNoRecipient is returned when neither the worker nor its company has an
// address to write to.
var ErrNoRecipient = errors.New("alert has no recipient")

func (n *MailNotifier) Notify(ctx context.Context, a attendance.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, cc := n.recipients(a)
	if len(to) == 0 {
		return fmt.Errorf("%w: %s for %s", ErrNoRecipient, a.Kind, a.Worker.ID)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to...)
	if len(cc) > 0 {
		m.SetHeader("Cc", cc...)
	}
	m.SetHeader("Subject", alertSubject(a))
	m.SetBody("text/plain", n.alertBody(a))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("sending %s alert for %s: %w", a.Kind, a.Worker.ID, err)
	}
	n.logger.Info("alert mailed", "kind", a.Kind, "worker", a.Worker.ID, "to", strings.Join(to, ","))
	return nil
}

func (n *MailNotifier) recipients(a attendance.Alert) (to, cc []string) {
	hr := ""
	if a.Company != nil {
		hr = a.Company.HREmail
	}
	if a.Kind == attendance.AlertForgottenExit && a.Worker.Email != "" {
		to = append(to, a.Worker.Email)
		if hr != "" {
			cc = append(cc, hr)
		}
		return to, cc
	}
	if hr != "" {
		to = append(to, hr)
	}
	return to, cc
}

func alertSubject(a attendance.Alert) string {
	name := displayName(a.Worker)
	switch a.Kind {
	case attendance.AlertAbsence:
		return "Absence alert: " + name
	case attendance.AlertExcessHours:
		return "Urgent, excess hours: " + name
	case attendance.AlertForgottenExit:
		return "Attendance alert, no exit recorded: " + name
	default:
		return fmt.Sprintf("Attendance alert (%s): %s", a.Kind, name)
	}
}

func (n *MailNotifier) alertBody(a attendance.Alert) string {
	var b strings.Builder
	if a.Company != nil {
		fmt.Fprintf(&b, "Company: %s\n", a.Company.Name)
	}
	fmt.Fprintf(&b, "Worker: %s", displayName(a.Worker))
	if a.Worker.NationalID != "" {
		fmt.Fprintf(&b, " (ID: %s)", a.Worker.NationalID)
	}
	b.WriteString("\n\n")

	switch a.Kind {
	case attendance.AlertAbsence:
		b.WriteString("Status: no ENTRY recorded.\n")
	case attendance.AlertExcessHours:
		b.WriteString("Status: the open shift exceeds the expected hours plus the fatigue margin.\n")
	case attendance.AlertForgottenExit:
		b.WriteString("Status: an ENTRY has no matching EXIT. Check whether it was forgotten or is long overtime.\n")
	}
	fmt.Fprintf(&b, "Date: %s\n", a.Date.String())
	if a.Detail != "" {
		fmt.Fprintf(&b, "Detail: %s\n", a.Detail)
	}
	if !a.At.IsZero() {
		fmt.Fprintf(&b, "Checked at: %s\n", a.At.In(n.loc).Format("15:04"))
	}
	return b.String()
}

func displayName(w attendance.Worker) string {
	if w.Name != "" {
		return w.Name
	}
	return string(w.ID)
}

// =============================================================================
// RECEIPTS
// =============================================================================

var receiptTemplate = template.Must(template.New("receipt").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333333;">
<h2>Attendance record</h2>
<p>{{.Company}}</p>
<p>Dear <strong>{{.Worker}}</strong>, your punch was recorded:</p>
<table>
<tr><td>Type</td><td><strong>{{.Kind}}</strong></td></tr>
<tr><td>Date</td><td>{{.Date}}</td></tr>
<tr><td>Time</td><td>{{.Time}}</td></tr>
<tr><td>Location</td><td>{{.Address}}{{if .MapURL}} (<a href="{{.MapURL}}">map</a>){{end}}</td></tr>
<tr><td>Chain hash</td><td><code>{{.Hash}}</code></td></tr>
</table>
<p style="font-size: 12px; color: #888888;">Automatic message, please do not reply.</p>
</body>
</html>`))

type receiptView struct {
	Company, Worker, Kind, Date, Time, Address, MapURL, Hash string
}

// SendReceipt mails the worker a copy of a recorded punch with HR in copy.
// Workers without an address are skipped.
func (n *MailNotifier) SendReceipt(ctx context.Context, w attendance.Worker, c *attendance.Company, p attendance.Punch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.Email == "" {
		return nil
	}

	view := receiptView{
		Worker:  displayName(w),
		Kind:    string(p.Kind),
		Date:    p.Timestamp.In(n.loc).Format("02/01/2006"),
		Time:    p.Timestamp.In(n.loc).Format("15:04:05"),
		Address: p.Address,
		Hash:    p.SelfHash,
	}
	if !p.Location.IsZero() {
		view.MapURL = "https://www.google.com/maps?q=" + p.Location.String()
	}
	var hr string
	if c != nil {
		view.Company = c.Name
		hr = c.HREmail
	}

	var body strings.Builder
	if err := receiptTemplate.Execute(&body, view); err != nil {
		return fmt.Errorf("rendering receipt: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", w.Email)
	if hr != "" {
		m.SetHeader("Cc", hr)
	}
	m.SetHeader("Subject", fmt.Sprintf("Attendance receipt: %s - %s", p.Kind, view.Worker))
	m.SetBody("text/html", body.String())

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("sending receipt for punch %s: %w", p.ID, err)
	}
	return nil
}
