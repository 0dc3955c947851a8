// Package notifications implements the outbound failure notifier (§7,
// SPEC_FULL §4.16): an ntfy.sh POST fired only on the *edge* into a
// persistent-failure state (RTC invalid, config corrupt at boot, event
// table full), never repeatedly while that state persists.
//
// Grounded on the teacher's internal/notifications package (same ntfy.sh
// POST shape, same client lifecycle), generalized from ad hoc call sites
// scattered through HVAC fault handling into a small edge-detecting
// latch per failure kind, since this domain's failures are boolean
// persistent conditions rather than per-zone fault codes.
package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind names a persistent-failure condition the main loop or console can
// observe. Each kind edge-fires independently.
type Kind int

const (
	RTCInvalid Kind = iota
	ConfigCorrupt
	EventTableFull
)

func (k Kind) title() string {
	switch k {
	case RTCInvalid:
		return "coop: RTC invalid"
	case ConfigCorrupt:
		return "coop: config corrupt at boot"
	case EventTableFull:
		return "coop: event table full"
	default:
		return "coop: unknown failure"
	}
}

// Notifier POSTs to an ntfy.sh topic, firing at most once per transition
// into each failure Kind.
type Notifier struct {
	client *http.Client
	topic  string

	active map[Kind]bool
}

// New constructs a Notifier bound to the given ntfy.sh topic. An empty
// topic disables sending; Report becomes a no-op rather than erroring,
// since a missing topic is a deployment choice, not a bug.
func New(topic string) *Notifier {
	return &Notifier{
		client: &http.Client{Timeout: 10 * time.Second},
		topic:  topic,
		active: make(map[Kind]bool),
	}
}

// Report observes the current value of a failure condition and sends a
// notification only on the false->true edge. Safe to call every main-loop
// iteration with the condition's live value.
func (n *Notifier) Report(kind Kind, failing bool) {
	was := n.active[kind]
	n.active[kind] = failing

	if failing && !was {
		if err := n.send(kind.title(), fmt.Sprintf("%s entered a persistent failure state", kind.title())); err != nil {
			log.Warn().Err(err).Str("kind", kind.title()).Msg("failed to send failure notification")
		}
	}
}

func (n *Notifier) send(title, message string) error {
	if n.topic == "" {
		return nil
	}

	url := fmt.Sprintf("https://ntfy.sh/%s", n.topic)
	payload := map[string]any{"topic": n.topic, "title": title, "message": message}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	log.Debug().Str("title", title).Int("status", resp.StatusCode).Msg("notification sent")
	return nil
}
