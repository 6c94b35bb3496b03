package notifications

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blicence/notifysync/pkg/connection"
)

// Reasons reported in a Decision that does not notify.
const (
	ReasonDisabled         = "disabled"
	ReasonCategoryDisabled = "category_disabled"
	ReasonHeartbeat        = "heartbeat"
	ReasonBelowThreshold   = "below_threshold"
)

// Usage thresholds, in percent.
const (
	UsageHighThreshold   = 90
	UsageNormalThreshold = 75
	UsageLowThreshold    = 50
)

// Decision is the outcome of evaluating an inbound event. When Notify is
// false, Reason names why and Request is empty.
type Decision struct {
	Notify  bool
	Reason  string
	Request Request
}

// Policy turns inbound events into notification requests. It has no side
// effects and is safe for concurrent use.
type Policy struct {
	catalog *Catalog
}

// NewPolicy returns a Policy rendering texts from c, or from the built-in
// English catalog when c is nil.
func NewPolicy(c *Catalog) *Policy {
	if c == nil {
		c = MustCatalog(DefaultLanguage)
	}
	return &Policy{catalog: c}
}

// Catalog returns the catalog texts are rendered from.
func (p *Policy) Catalog() *Catalog { return p.catalog }

// CategoryFor maps an inbound event type to the category it produces.
func CategoryFor(t connection.EventType) (Category, bool) {
	switch t {
	case connection.EventPlanUpdate:
		return CategoryPlanUpdate, true
	case connection.EventPriceChange:
		return CategoryPriceChange, true
	case connection.EventUsageUpdate:
		return CategoryUsageAlert, true
	case connection.EventNFTUpdate:
		return CategoryNFTReceived, true
	case connection.EventSystemMessage:
		return CategorySystem, true
	}
	return "", false
}

// Decide evaluates ev against cfg. Gated events are not errors. Unknown
// types return ErrUnknownEvent and unusable payloads ErrInvalidPayload.
func (p *Policy) Decide(ev connection.Message, cfg Config) (Decision, error) {
	cat, ok := CategoryFor(ev.Type)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	if ev.Type == connection.EventSystemMessage && isHeartbeat(ev.Payload) {
		return Decision{Reason: ReasonHeartbeat}, nil
	}
	if !cfg.Enabled {
		return Decision{Reason: ReasonDisabled}, nil
	}
	if !cfg.Allows(cat) {
		return Decision{Reason: ReasonCategoryDisabled}, nil
	}
	if ev.Payload == nil {
		return Decision{}, fmt.Errorf("%w: %s: missing payload", ErrInvalidPayload, ev.Type)
	}

	var (
		req Request
		err error
	)
	switch ev.Type {
	case connection.EventPlanUpdate:
		req = p.planUpdate(ev.Payload)
	case connection.EventPriceChange:
		req, err = p.priceChange(ev.Payload)
	case connection.EventUsageUpdate:
		req, err = p.usageUpdate(ev.Payload)
		if err == nil && req.Title == "" {
			return Decision{Reason: ReasonBelowThreshold}, nil
		}
	case connection.EventNFTUpdate:
		req = p.nftUpdate(ev.Payload)
	case connection.EventSystemMessage:
		req, err = p.systemMessage(ev.Payload)
	}
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Type, err)
	}
	req.Category = cat
	return Decision{Notify: true, Request: req}, nil
}

func (p *Policy) planName(payload map[string]any) string {
	if name, ok := stringField(payload, "planName"); ok {
		return name
	}
	return p.catalog.text("plan_default", nil)
}

func (p *Policy) planUpdate(payload map[string]any) Request {
	status, _ := stringField(payload, "status")
	key := "plan.updated"
	switch status {
	case "activated", "expired", "suspended":
		key = "plan." + status
	}
	planID, _ := stringField(payload, "planId")
	return Request{
		Title:    p.catalog.text("plan.title", nil),
		Message:  p.catalog.text(key, map[string]any{"plan": p.planName(payload)}),
		Priority: PriorityHigh,
		Data:     map[string]any{"planId": planID, "updateType": status},
	}
}

func (p *Policy) priceChange(payload map[string]any) (Request, error) {
	oldPrice, ok := numberField(payload, "oldPrice")
	if !ok {
		return Request{}, fmt.Errorf("oldPrice is not a number")
	}
	newPrice, ok := numberField(payload, "newPrice")
	if !ok {
		return Request{}, fmt.Errorf("newPrice is not a number")
	}

	direction := "decrease"
	if newPrice > oldPrice {
		direction = "increase"
	}
	planID, _ := stringField(payload, "planId")
	return Request{
		Title: p.catalog.text("price.title_"+direction, nil),
		Message: p.catalog.text("price."+direction, map[string]any{
			"plan": p.planName(payload),
			"old":  oldPrice,
			"new":  newPrice,
		}),
		Priority: PriorityNormal,
		Data: map[string]any{
			"planId":    planID,
			"oldPrice":  oldPrice,
			"newPrice":  newPrice,
			"direction": direction,
		},
	}, nil
}

// usageUpdate returns an empty Request when usage is below every threshold.
func (p *Policy) usageUpdate(payload map[string]any) (Request, error) {
	pct, ok := numberField(payload, "usagePercentage")
	if !ok {
		return Request{}, fmt.Errorf("usagePercentage is not a number")
	}

	var key string
	var prio Priority
	switch {
	case pct >= UsageHighThreshold:
		key, prio = "usage.high", PriorityHigh
	case pct >= UsageNormalThreshold:
		key, prio = "usage.normal", PriorityNormal
	case pct >= UsageLowThreshold:
		key, prio = "usage.low", PriorityLow
	default:
		return Request{}, nil
	}

	planID, _ := stringField(payload, "planId")
	return Request{
		Title: p.catalog.text("usage.title", nil),
		Message: p.catalog.text(key, map[string]any{
			"plan":    p.planName(payload),
			"percent": pct,
		}),
		Priority: prio,
		Data:     map[string]any{"planId": planID, "usagePercentage": pct},
	}, nil
}

func (p *Policy) nftUpdate(payload map[string]any) Request {
	tokenID, _ := stringField(payload, "tokenId")
	return Request{
		Title:    p.catalog.text("nft.title", nil),
		Message:  p.catalog.text("nft.message", map[string]any{"plan": p.planName(payload)}),
		Priority: PriorityNormal,
		Data:     map[string]any{"tokenId": tokenID},
	}
}

func (p *Policy) systemMessage(payload map[string]any) (Request, error) {
	title, _ := stringField(payload, "title")
	msg, _ := stringField(payload, "message")
	if title == "" && msg == "" {
		return Request{}, fmt.Errorf("title and message are empty")
	}
	if title == "" {
		title = p.catalog.text("system.title", nil)
	}
	prio := PriorityNormal
	if s, ok := stringField(payload, "priority"); ok && Priority(s).Valid() {
		prio = Priority(s)
	}
	return Request{Title: title, Message: msg, Priority: prio}, nil
}

func isHeartbeat(payload map[string]any) bool {
	t, _ := stringField(payload, "type")
	return t == "heartbeat"
}

// stringField returns a non-empty string field. Numeric ids are rendered
// without a fractional part.
func stringField(payload map[string]any, key string) (string, bool) {
	switch v := payload[key].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// numberField accepts JSON numbers and numeric strings.
func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
