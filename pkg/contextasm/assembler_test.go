package contextasm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revisoria/poe-engine/pkg/model"
)

func testBundle() Bundle {
	return Bundle{
		Project: model.Project{
			ProjectID: "proj-1",
			Typology:  model.TypologyConsulting,
			Amount:    model.CentsFromPesos(1_500_000),
		},
		Supplier: model.Supplier{RFC: "ABC850101AB1", RelationshipType: model.RelationshipIndependentThird},
	}
}

func TestAssemble_FailsOnMissingMandatory(t *testing.T) {
	cfg := model.AgentConfig{
		AgentID: "A1_SPONSOR",
		RequiredContextFields: model.ContextFields{
			Mandatory: []string{"project.typology", "supplier.rfc", "project.name"},
		},
	}

	_, err := Assemble(cfg, testBundle(), true)
	require.Error(t, err)

	var incomplete *model.IncompleteContextError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, "A1_SPONSOR", incomplete.AgentID)
	assert.Contains(t, incomplete.MissingPaths, "project.name")
	assert.True(t, errors.Is(err, model.ErrIncompleteContext))
}

func TestAssemble_DeterministicForIdenticalInputs(t *testing.T) {
	cfg := model.AgentConfig{
		AgentID: "A1_SPONSOR",
		RequiredContextFields: model.ContextFields{
			Mandatory: []string{"project.typology", "supplier.rfc"},
			Desirable: []string{"project.tenant_id"},
		},
	}

	out1, err1 := Assemble(cfg, testBundle(), true)
	out2, err2 := Assemble(cfg, testBundle(), true)
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, out1["project.typology"], out2["project.typology"])
	assert.Equal(t, out1["supplier.rfc"], out2["supplier.rfc"])
}

func TestAssemble_MetaCarriesAgentIDAndIncludedPaths(t *testing.T) {
	cfg := model.AgentConfig{
		AgentID: "A1_SPONSOR",
		RequiredContextFields: model.ContextFields{
			Mandatory: []string{"project.typology"},
		},
	}

	out, err := Assemble(cfg, testBundle(), true)
	require.NoError(t, err)
	meta, ok := out["_meta"].(Meta)
	require.True(t, ok)
	assert.Equal(t, "A1_SPONSOR", meta.AgentID)
	assert.Contains(t, meta.IncludedPaths, "project.typology")
}
