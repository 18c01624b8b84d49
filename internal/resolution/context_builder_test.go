package resolution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatform/chatform/internal/errors"
	"github.com/chatform/chatform/internal/models"
	"github.com/chatform/chatform/internal/tools"
)

func TestPromptsCoverEveryRule(t *testing.T) {
	lib, err := prompts()
	require.NoError(t, err)

	for _, rule := range []models.RuleID{
		models.RuleBlacklist,
		models.RuleEmployerVerification,
		models.RuleDistance,
		models.RulePoliticalExposure,
		models.RuleSourceOfFunds,
	} {
		rp := lib.forRule(rule)
		assert.Equal(t, string(rule), rp.Rule)
		assert.NotEmpty(t, rp.Guidance, rule)
	}
	assert.Equal(t, "generic", lib.forRule("made_up_check").Rule)
}

func TestBuild_EmployerContext(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewEmployerHandler(stubVerifier{})))
	flag := employerFlag()
	flag.DebugInfo = models.EmployerDebug{
		AISearch: &models.AISearchResult{Result: "NO", Explanation: "no such company", ClosestCompanyName: "SCB Bank"},
	}

	convo, err := NewContextBuilder(reg).Build(flag, application())
	require.NoError(t, err)

	for _, want := range []string{
		"Rule: employer_verification_check",
		"Could not verify employer 'SCB Bankk'",
		"- companyName: SCB Bankk",
		"- companyWebsite: (empty)",
		"Closest company found: SCB Bank.",
		"currentAddress: Chiang Mai",
		"Tools you can call: verify_employer.",
		`"follow_up"`,
	} {
		assert.Contains(t, convo.System, want)
	}
	require.Len(t, convo.Tools, 1)
	assert.Equal(t, tools.EmployerToolName, convo.Tools[0].Name)
	assert.Equal(t, "companyName", convo.DefaultField)
}

func TestBuild_NoToolsForDistance(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.NewEmployerHandler(stubVerifier{})))

	convo, err := NewContextBuilder(reg).Build(distanceFlag(), application())
	require.NoError(t, err)
	assert.Empty(t, convo.Tools)
	assert.NotContains(t, convo.System, "Tools you can call")
	assert.Equal(t, "companyAddress", convo.DefaultField)

	// affected fields lead the application context
	ctxStart := strings.Index(convo.System, "Application context:")
	require.Positive(t, ctxStart)
	section := convo.System[ctxStart:]
	assert.Less(t, strings.Index(section, "currentAddress"), strings.Index(section, "firstName"))
}

func TestBuild_DefaultFieldFallsBack(t *testing.T) {
	flag := models.RedFlag{Rule: models.RuleDistance, Message: "far", AffectedFields: []string{"currentAddress"}}
	convo, err := NewContextBuilder(nil).Build(flag, application())
	require.NoError(t, err)
	assert.Equal(t, "currentAddress", convo.DefaultField)
}

func TestBuild_RequiresAffectedFields(t *testing.T) {
	_, err := NewContextBuilder(nil).Build(models.RedFlag{Rule: models.RuleDistance, Message: "x"}, application())
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
