package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	t.Parallel()

	channels := map[Category]string{
		CategoryPlanUpdate:  "plan-updates",
		CategoryPriceChange: "price-alerts",
		CategoryUsageAlert:  "usage-alerts",
		CategoryNFTReceived: "nft-notifications",
		CategorySystem:      "system",
	}
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
		assert.Equal(t, channels[c], c.Channel(), c)
	}
	assert.False(t, Category("usage_update").Valid())
}

func TestPriority_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []Priority{PriorityLow, PriorityNormal, PriorityHigh} {
		assert.True(t, p.Valid())
	}
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}

func TestNotification_Clone(t *testing.T) {
	t.Parallel()

	n := Notification{ID: "1", Data: map[string]any{"planId": "p1"}}
	c := n.Clone()
	c.Data["planId"] = "changed"

	assert.Equal(t, "p1", n.Data["planId"])
	assert.Nil(t, Notification{}.Clone().Data)
}
