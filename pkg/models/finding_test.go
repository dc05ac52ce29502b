package models_test

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idan5353/video-threat-detection/pkg/models"
)

func TestThreatFinding_LabelKeepsEmptyInstances(t *testing.T) {
	for _, instances := range [][]models.Instance{nil, {}} {
		b, err := json.Marshal(models.ThreatFinding{
			Type:       models.FindingTypeThreatLabel,
			Label:      "Gun",
			Confidence: 97.2,
			Instances:  instances,
		})
		require.NoError(t, err)
		assert.Contains(t, string(b), `"instances":[]`)
	}
}

func TestThreatFinding_OtherKindsOmitInstances(t *testing.T) {
	parent := "Violence"
	for _, f := range []models.ThreatFinding{
		{Type: models.FindingTypeUnsafeContent, Label: "Weapons", ParentName: &parent},
		{Type: models.FindingTypeCrowdDetection, Label: "Large Crowd", PersonCount: 6},
	} {
		b, err := json.Marshal(f)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "instances")
	}
}

func TestThreatFinding_RoundTripsInstances(t *testing.T) {
	in := models.ThreatFinding{
		Type:      models.FindingTypeThreatLabel,
		Label:     "Knife",
		Instances: []models.Instance{{Confidence: 91}},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out models.ThreatFinding
	require.NoError(t, json.Unmarshal(b, &out))
	require.Len(t, out.Instances, 1)
	assert.Equal(t, 91.0, out.Instances[0].Confidence)
}
