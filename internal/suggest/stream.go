package suggest

import (
	"context"
	"fmt"
	"time"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

const (
	streamBuffer = 16
	// slowConsumerGrace is how long a full buffer may stay full before the
	// consumer is declared gone and the run aborted.
	slowConsumerGrace = 2 * time.Second
)

// Event is one streaming frame. The kind travels as the "event" property of
// the payload itself; there is no envelope around it.
type Event map[string]any

// Kind returns the event's kind property.
func (e Event) Kind() string {
	k, _ := e["event"].(string)
	return k
}

type eventFunc func(Event) error

func send(emit eventFunc, ev Event) error {
	if emit == nil {
		return nil
	}
	return emit(ev)
}

// Stream runs the pipeline for one user-week and returns its ordered event
// channel. The channel closes after the terminal complete or error frame;
// cancelling ctx aborts the run at its next suspension point.
func (p *Pipeline) Stream(ctx context.Context, userID string, week warehouse.Date, dryRun bool) <-chan Event {
	ch := make(chan Event, streamBuffer)
	em := &emitter{ctx: ctx, ch: ch}
	go func() {
		defer close(ch)
		_, err := p.run(ctx, userID, week, dryRun, em.send)
		if err == nil {
			return
		}
		if fault.IsKind(err, fault.ConsumerSlow) || fault.IsKind(err, fault.Cancelled) {
			// Nobody is listening; drop the farewell frame if it does not fit.
			select {
			case ch <- errorEvent(err):
			default:
			}
			return
		}
		_ = em.send(errorEvent(err))
	}()
	return ch
}

// emitter pushes events to the consumer with bounded patience: the buffer
// absorbs bursts, and a buffer that stays full past the grace period means
// the consumer stopped draining.
type emitter struct {
	ctx context.Context
	ch  chan Event
}

func (e *emitter) send(ev Event) error {
	select {
	case e.ch <- ev:
		return nil
	case <-e.ctx.Done():
		return fault.Wrap(fault.Cancelled, e.ctx.Err(), "stream cancelled")
	default:
	}
	t := time.NewTimer(slowConsumerGrace)
	defer t.Stop()
	select {
	case e.ch <- ev:
		return nil
	case <-e.ctx.Done():
		return fault.Wrap(fault.Cancelled, e.ctx.Err(), "stream cancelled")
	case <-t.C:
		return fault.New(fault.ConsumerSlow, "consumer stopped draining events")
	}
}

func startEvent(userID string, week warehouse.Date) Event {
	return Event{
		"event":      "start",
		"user_id":    userID,
		"week_start": week.String(),
		"at":         time.Now().UTC().Format(time.RFC3339),
	}
}

func itemsLoadedEvent(items []warehouse.PurchaseItem) Event {
	brief := make([]map[string]any, 0, len(items))
	for _, it := range items {
		brief = append(brief, map[string]any{
			"name":     it.ItemName,
			"price":    it.Price,
			"merchant": it.Merchant,
		})
	}
	return Event{"event": "items_loaded", "count": len(items), "items": brief}
}

func analyzingEvent(n int) Event {
	return Event{
		"event":   "analyzing",
		"message": fmt.Sprintf("Searching the web for cheaper alternatives to %d items", n),
	}
}

func progressEvent(chunk string) Event {
	return Event{"event": "progress", "chunk": chunk}
}

func foundEvent(f warehouse.Finding) Event {
	return Event{
		"event":                "found",
		"item_name":            f.ItemName,
		"original_price":       f.OriginalPrice,
		"original_merchant":    f.OriginalMerchant,
		"alternative_merchant": f.AlternativeMerchant,
		"alternative_price":    f.AlternativePrice,
		"shipping_cost":        f.ShippingCost,
		"tax_estimate":         f.TaxEstimate,
		"total_landed_cost":    f.TotalLandedCost,
		"total_savings":        f.TotalSavings,
		"url":                  f.URL,
		"notes":                f.Notes,
		"channel":              f.Channel,
		"confidence":           f.Confidence,
	}
}

func completeEvent(r *warehouse.WeeklyReport) Event {
	return Event{
		"event":                   "complete",
		"items_analyzed":          r.ItemsAnalyzed,
		"items_with_alternatives": r.ItemsWithAlternatives,
		"total_savings":           r.TotalSavings,
		"processing_time_ms":      r.ProcessingTimeMS,
	}
}

func errorEvent(err error) Event {
	return Event{
		"event":   "error",
		"kind":    string(fault.KindOf(err)),
		"message": err.Error(),
		"at":      time.Now().UTC().Format(time.RFC3339),
	}
}
