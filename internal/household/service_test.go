package household

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
)

type openerSpy struct {
	opened []id.HouseholdID
}

func (o *openerSpy) OpenForHousehold(ctx context.Context, householdID id.HouseholdID) error {
	o.opened = append(o.opened, householdID)
	return nil
}

func newTestService(t *testing.T) (*Service, *openerSpy) {
	t.Helper()
	opener := &openerSpy{}
	svc := NewService(NewMemoryStore(), opener, slog.New(slog.DiscardHandler))
	return svc, opener
}

func validInput() CreateInput {
	birth := time.Date(1985, time.May, 2, 0, 0, 0, 0, time.UTC)
	return CreateInput{
		Code:            "0001234",
		UpdatedOn:       time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		AvgIncomeCents:  15000,
		DeclaredMembers: 2,
		Members: []MemberInput{
			{Name: "Maria", RegistryID: "10000000001", Sex: SexFemale, Kinship: KinshipHead, BirthDate: &birth},
			{Name: "Joana", RegistryID: "10000000002", Sex: SexFemale, Kinship: KinshipChild},
		},
	}
}

func TestServiceCreate(t *testing.T) {
	t.Run("creates household and opens evaluation", func(t *testing.T) {
		svc, opener := newTestService(t)

		h, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)
		assert.Len(t, h.Members, 2)
		require.Len(t, opener.opened, 1)
		assert.Equal(t, h.ID, opener.opened[0])

		got, err := svc.GetByCode(context.Background(), "0001234")
		require.NoError(t, err)
		assert.Equal(t, h.ID, got.ID)
	})

	t.Run("rejects duplicate code", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		_, err = svc.Create(context.Background(), validInput())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejects two heads", func(t *testing.T) {
		svc, _ := newTestService(t)
		input := validInput()
		input.Members[1].Kinship = KinshipHead

		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects duplicate registry id", func(t *testing.T) {
		svc, _ := newTestService(t)
		input := validInput()
		input.Members[1].RegistryID = input.Members[0].RegistryID

		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects unknown kinship code", func(t *testing.T) {
		svc, _ := newTestService(t)
		input := validInput()
		input.Members[1].Kinship = Kinship(42)

		_, err := svc.Create(context.Background(), input)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestServiceAddMember(t *testing.T) {
	t.Run("adds member", func(t *testing.T) {
		svc, _ := newTestService(t)
		h, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), h.ID, MemberInput{
			Name: "Pedro", RegistryID: "10000000003", Sex: SexMale, Kinship: KinshipChild,
		})
		require.NoError(t, err)

		got, err := svc.Get(context.Background(), h.ID)
		require.NoError(t, err)
		assert.Len(t, got.Members, 3)
	})

	t.Run("rejects second head", func(t *testing.T) {
		svc, _ := newTestService(t)
		h, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), h.ID, MemberInput{
			Name: "Pedro", RegistryID: "10000000003", Sex: SexMale, Kinship: KinshipHead,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects duplicate registry id within household", func(t *testing.T) {
		svc, _ := newTestService(t)
		h, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), h.ID, MemberInput{
			Name: "Pedro", RegistryID: "10000000001", Sex: SexMale, Kinship: KinshipChild,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unknown household", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.AddMember(context.Background(), id.NewHouseholdID(), MemberInput{
			Name: "Pedro", RegistryID: "10000000003", Kinship: KinshipChild,
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestServiceDelete(t *testing.T) {
	svc, _ := newTestService(t)
	h, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), h.ID))

	_, err = svc.Get(context.Background(), h.ID)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = svc.Delete(context.Background(), h.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
