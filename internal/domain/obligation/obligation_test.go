package obligation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabil/fiscore/pkg/types/common"
)

func TestNewObligation_Validation(t *testing.T) {
	s := Schedule{Frequency: FrequencyMonthly, InternalTargetDay: 15, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}

	o, err := NewObligation(common.OrgID("org-1"), "  Carnê Leão  ", s, " 0190 ")
	require.NoError(t, err)
	assert.Equal(t, "Carnê Leão", o.Name)
	assert.Equal(t, "0190", o.FiscalCode)
	assert.False(t, o.Archived)

	_, err = NewObligation(common.OrgID("org-1"), "   ", s, "")
	assert.Error(t, err)

	bad := s
	bad.InternalTargetDay = 40
	_, err = NewObligation(common.OrgID("org-1"), "GPS", bad, "")
	assert.Error(t, err)
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "12345678909", NormalizeIdentifier("123.456.789-09"))
	assert.Equal(t, "12345678000195", NormalizeIdentifier("12.345.678/0001-95"))
	assert.Equal(t, "12345678909", NormalizeIdentifier("12345678909"))
	assert.Equal(t, "", NormalizeIdentifier("n/a"))
}

func TestClientObligationLink_EffectiveSchedule(t *testing.T) {
	template := Schedule{Frequency: FrequencyMonthly, InternalTargetDay: 15, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}
	override := Schedule{Frequency: FrequencyMonthly, InternalTargetDay: 10, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}

	plain, err := NewClientObligationLink(common.OrgID("org-1"), common.NewID(), common.NewID(), nil)
	require.NoError(t, err)
	assert.Equal(t, template, plain.EffectiveSchedule(template))
	assert.True(t, plain.Active)

	custom, err := NewClientObligationLink(common.OrgID("org-1"), common.NewID(), common.NewID(), &override)
	require.NoError(t, err)
	assert.Equal(t, override, custom.EffectiveSchedule(template))

	custom.Disable()
	assert.False(t, custom.Active)
	custom.Enable()
	assert.True(t, custom.Active)
}

func TestNewClientObligationLink_RejectsInvalidOverride(t *testing.T) {
	bad := Schedule{Frequency: "hourly", InternalTargetDay: 1, LegalDueRule: LegalDueRule{Kind: LegalDueLastDayOfMonth}}
	_, err := NewClientObligationLink(common.OrgID("org-1"), common.NewID(), common.NewID(), &bad)
	assert.Error(t, err)
}
