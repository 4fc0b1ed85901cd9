package textvec

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"high", "fever", "and", "dry", "cough"}, Tokens("High FEVER, and a dry-cough!"))
	assert.Empty(t, Tokens(""))
	assert.Empty(t, Tokens("a b c"))
}

func TestTerms_UnigramsAndBigrams(t *testing.T) {
	terms := Terms("shortness of breath", 2)
	assert.Equal(t, []string{"shortness", "of", "breath", "shortness of", "of breath"}, terms)
	assert.Equal(t, []string{"shortness", "of", "breath"}, Terms("shortness of breath", 1))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "chest pain today", Normalize("  Chest\tPAIN\n today "))
	// Full-width letters fold to ASCII under NFKC.
	assert.Equal(t, "fever", Normalize("ＦＥＶＥＲ"))
}

func TestFit_SmoothedIDFAndOrdering(t *testing.T) {
	docs := []string{"fever chills", "cough chills", "headache"}
	v := Fit(docs, 1, 0)

	assert.Equal(t, []string{"chills", "cough", "fever", "headache"}, v.FeatureNames())
	assert.InDelta(t, math.Log(4.0/3.0)+1, v.IDF[v.Vocabulary["chills"]], 1e-12)
	assert.InDelta(t, math.Log(4.0/2.0)+1, v.IDF[v.Vocabulary["fever"]], 1e-12)
}

func TestFit_MaxFeaturesKeepsMostFrequent(t *testing.T) {
	docs := []string{"cough cough fever", "cough rash", "fever"}
	v := Fit(docs, 1, 2)

	assert.Equal(t, 2, v.Size())
	assert.Contains(t, v.Vocabulary, "cough")
	assert.Contains(t, v.Vocabulary, "fever")
	assert.NotContains(t, v.Vocabulary, "rash")
}

func TestTransform_NormalisedAndSimilarity(t *testing.T) {
	v := Fit([]string{"fever high temperature chills", "cough dry cough", "headache migraine"}, 2, 0)

	vec := v.Transform("I have a fever and chills")
	require.Greater(t, vec.Len(), 0)
	assert.InDelta(t, 1.0, Dot(vec, vec), 1e-9)

	empty := v.Transform("nothing relevant here")
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 0.0, Dot(vec, empty))

	fever := v.Transform("fever high temperature chills")
	cough := v.Transform("cough dry cough")
	assert.Greater(t, Dot(vec, fever), Dot(vec, cough))
}

func TestVectorizer_JSONRoundTripKeepsBehaviour(t *testing.T) {
	v := Fit([]string{"sore throat", "runny nose", "sore muscles"}, 2, 0)
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var loaded Vectorizer
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, v.Transform("sore throat today"), loaded.Transform("sore throat today"))
}
