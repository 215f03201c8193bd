package validate

import (
	"errors"
	"testing"

	"github.com/rifas-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_RaffleSizeOutOfRange(t *testing.T) {
	err := Struct(domain.CreateRaffleRequest{Name: "Rifa", Size: 9})

	require.Error(t, err)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "size", ve.Field)
	assert.Contains(t, ve.Reason, "min=10")
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestStruct_EmptyName(t *testing.T) {
	err := Struct(domain.CreateRaffleRequest{Size: 600})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStruct_ProfileEmailOptional(t *testing.T) {
	assert.NoError(t, Struct(domain.ParticipantProfile{Name: "Ana", Phone: "11999990000"}))
	assert.Error(t, Struct(domain.ParticipantProfile{Name: "Ana", Phone: "1", Email: "not-an-email"}))
}

func TestStruct_LinkLimitBounds(t *testing.T) {
	assert.NoError(t, Struct(domain.CreateLinkRequest{Limit: 100}))
	assert.Error(t, Struct(domain.CreateLinkRequest{Limit: 101}))
	assert.Error(t, Struct(domain.CreateLinkRequest{Limit: 0}))
}
