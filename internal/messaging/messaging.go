// Package messaging dispatches outbound campaign messages to customers.
//
// Delivery is per (customer, language) with independent outcome
// accounting: one recipient's failure never aborts the batch. The
// dispatcher returns a complete outcome list sized to its input; only a
// failure to build the target set itself is an error.
package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mbd888/storesync/internal/metrics"
)

// Recipient is one campaign target.
type Recipient struct {
	CustomerID string
	Name       string
	Phone      string
}

// Sender delivers one message to one phone number in one language.
// A non-nil error or a non-success status code both record a failure
// for that (customer, language) pair only.
type Sender interface {
	Send(ctx context.Context, phone, name, language string) (statusCode int, detail string, err error)
}

// Outcome records delivery results for one customer. For a customer with
// no phone, Status is set and Statuses is nil; otherwise Statuses holds
// one entry per attempted language.
type Outcome struct {
	CustomerID string            `json:"customer_id"`
	Status     string            `json:"status,omitempty"`
	Statuses   map[string]string `json:"statuses,omitempty"`
}

// StatusNoPhone is the single outcome for a customer with no usable
// contact address.
const StatusNoPhone = "Failed - No phone"

// Dispatcher fans a message out to a customer set.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, logger: logger}
}

// Dispatch sends to every recipient in every language, in the given
// language order, and returns one outcome per recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []Recipient, languages []string) []Outcome {
	outcomes := make([]Outcome, 0, len(recipients))

	for _, r := range recipients {
		if r.Phone == "" {
			metrics.MessagesTotal.WithLabelValues("none", "no_phone").Inc()
			outcomes = append(outcomes, Outcome{CustomerID: r.CustomerID, Status: StatusNoPhone})
			continue
		}

		out := Outcome{CustomerID: r.CustomerID, Statuses: make(map[string]string, len(languages))}
		for _, lang := range languages {
			out.Statuses[lang] = d.sendOne(ctx, r, lang)
		}
		outcomes = append(outcomes, out)
	}

	return outcomes
}

func (d *Dispatcher) sendOne(ctx context.Context, r Recipient, lang string) string {
	code, detail, err := d.sender.Send(ctx, r.Phone, r.Name, lang)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues(lang, "error").Inc()
		d.logger.Warn("message send failed", "customer_id", r.CustomerID, "language", lang, "error", err)
		return fmt.Sprintf("Failed - %s", err.Error())
	}
	if code != 200 {
		metrics.MessagesTotal.WithLabelValues(lang, "rejected").Inc()
		d.logger.Warn("message rejected by provider",
			"customer_id", r.CustomerID, "language", lang, "status", code)
		return fmt.Sprintf("Failed - %s", detail)
	}

	metrics.MessagesTotal.WithLabelValues(lang, "success").Inc()
	return "Success"
}
