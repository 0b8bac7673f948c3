package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectRegistrar struct {
	specs []ModelRegistration
}

func (c *collectRegistrar) RegisterModel(spec ModelRegistration) error {
	c.specs = append(c.specs, spec)
	return nil
}

func TestRegisterGroqModels_AnnotatesTier(t *testing.T) {
	reg := &collectRegistrar{}
	require.NoError(t, RegisterGroqModels(reg, ProviderOptions{APIKey: "k", Tier: "Developer"}))
	require.NotEmpty(t, reg.specs)
	for _, spec := range reg.specs {
		assert.Equal(t, "groq", spec.Provider)
		assert.Equal(t, "developer", spec.Tier)
		require.NotNil(t, spec.RateLimit)
	}
	// developer tier triples the published free limits
	assert.Equal(t, 90, reg.specs[0].RateLimit.RPM)
}

func TestRegisterGeminiModels_AnnotatesTier(t *testing.T) {
	reg := &collectRegistrar{}
	require.NoError(t, RegisterGeminiModels(reg, ProviderOptions{APIKey: "k", Tier: "tier1"}))
	require.NotEmpty(t, reg.specs)
	for _, spec := range reg.specs {
		assert.Equal(t, "gemini", spec.Provider)
		assert.Equal(t, "tier1", spec.Tier)
		assert.Equal(t, 1.0, spec.RateLimit.RPS)
	}
}

func TestRegisterGeminiModels_DefaultsToFreeTier(t *testing.T) {
	reg := &collectRegistrar{}
	require.NoError(t, RegisterGeminiModels(reg, ProviderOptions{}))
	assert.Equal(t, "free", reg.specs[0].Tier)
}

func TestRegisterFakeModels_FactoryBuildsClient(t *testing.T) {
	reg := &collectRegistrar{}
	require.NoError(t, RegisterFakeModels(reg))
	require.Len(t, reg.specs, 4)

	cli, err := reg.specs[0].Factory(t.Context(), 0)
	require.NoError(t, err)
	assert.Equal(t, "Fake:fake-low", cli.Name())
	assert.Equal(t, 2048, cli.TokenCapacity())
}

func TestNewClients_RequireAPIKey(t *testing.T) {
	_, err := NewGroqClient(" ", "m", "", 0)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewGeminiClient(t.Context(), "", "m", 0)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
