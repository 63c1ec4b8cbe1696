package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewardSystemVersionDefaultsToV1(t *testing.T) {
	assert.Equal(t, RewardSystemV1, Breakdown(nil).RewardSystemVersion())
	assert.Equal(t, RewardSystemV1, Breakdown{}.RewardSystemVersion())
	assert.Equal(t, RewardSystemV1, Breakdown{"fee": 100}.RewardSystemVersion())
}

func TestWithRewardSystemStampsVersion(t *testing.T) {
	in := Breakdown{"fee": int64(100)}
	out := in.WithRewardSystem(RewardSystemV2)

	assert.Equal(t, RewardSystemV2, out.RewardSystemVersion())
	assert.Equal(t, false, out[BreakdownKeyDailyRewards])
	assert.Equal(t, int64(100), out["fee"])
	// Original is untouched.
	assert.Equal(t, RewardSystemV1, in.RewardSystemVersion())
}

func TestWithRewardSystemV1KeepsDailyRewards(t *testing.T) {
	out := Breakdown{}.WithRewardSystem(RewardSystemV1)
	assert.Equal(t, true, out[BreakdownKeyDailyRewards])
}

func TestCheckPayoutGateV1AcceptsAnything(t *testing.T) {
	h := &Holding{Breakdown: nil}
	require.NoError(t, h.CheckPayoutGate(nil))
	require.NoError(t, h.CheckPayoutGate(Metadata{MetadataKeyRewardType: "daily"}))
}

func TestCheckPayoutGateV2RejectsNonFinal(t *testing.T) {
	h := &Holding{Breakdown: Breakdown{}.WithRewardSystem(RewardSystemV2)}

	err := h.CheckPayoutGate(Metadata{MetadataKeyRewardType: "daily"})
	assert.ErrorIs(t, err, ErrDailyRewardsDisabled)

	err = h.CheckPayoutGate(nil)
	assert.ErrorIs(t, err, ErrDailyRewardsDisabled)
}

func TestCheckPayoutGateV2RequiresAllDaysCompleted(t *testing.T) {
	h := &Holding{Breakdown: Breakdown{}.WithRewardSystem(RewardSystemV2)}

	err := h.CheckPayoutGate(Metadata{MetadataKeyRewardType: RewardTypeFinal})
	assert.ErrorIs(t, err, ErrFinalRewardIncomplete)

	err = h.CheckPayoutGate(Metadata{
		MetadataKeyRewardType:       RewardTypeFinal,
		MetadataKeyAllDaysCompleted: false,
	})
	assert.ErrorIs(t, err, ErrFinalRewardIncomplete)
}

func TestCheckPayoutGateV2AcceptsCompleteFinalReward(t *testing.T) {
	h := &Holding{Breakdown: Breakdown{}.WithRewardSystem(RewardSystemV2)}

	err := h.CheckPayoutGate(Metadata{
		MetadataKeyRewardType:       RewardTypeFinal,
		MetadataKeyAllDaysCompleted: true,
	})
	require.NoError(t, err)
}

func TestMetadataHelpers(t *testing.T) {
	m := Metadata{"s": "value", "b": true, "n": 42}
	assert.Equal(t, "value", m.String("s"))
	assert.Equal(t, "", m.String("n"))
	assert.Equal(t, "", m.String("missing"))
	assert.True(t, m.Bool("b"))
	assert.False(t, m.Bool("s"))
	assert.False(t, Metadata(nil).Bool("b"))
	assert.Equal(t, "", Metadata(nil).String("s"))
}
