package service

import (
	"testing"

	"dealdesk/internal/model"
	"dealdesk/internal/pricing"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartnerService(t *testing.T) {
	f := newFixture(t)
	partners := NewPartnerService(f.partnerRepo, f.auditRepo, f.txManager)
	audits := NewAuditService(f.auditRepo)

	created, err := partners.CreatePartner(f.ctx, CreatePartnerRequest{
		Code:    " nb03 ",
		Name:    "Ningbo Paper",
		Type:    model.PartnerTypeFactory,
		Country: "cn",
		Email:   "sales@ningbo.example",
	}, f.staff)
	require.NoError(t, err)
	assert.Equal(t, "NB03", created.Code)
	assert.Equal(t, "CN", created.Country)
	assert.True(t, created.IsActive)

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name  string
			req   CreatePartnerRequest
			field string
		}{
			{"blank code", CreatePartnerRequest{Code: " ", Name: "X", Type: model.PartnerTypeClient}, "code"},
			{"blank name", CreatePartnerRequest{Code: "X1", Name: " ", Type: model.PartnerTypeClient}, "name"},
			{"unknown type", CreatePartnerRequest{Code: "X1", Name: "X", Type: "CARRIER"}, "type"},
			{"bad email", CreatePartnerRequest{Code: "X1", Name: "X", Type: model.PartnerTypeClient, Email: "not-an-email"}, "email"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := partners.CreatePartner(f.ctx, tt.req, f.staff)
				var ve *pricing.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field, ve.Field)
			})
		}
	})

	t.Run("duplicate code", func(t *testing.T) {
		_, err := partners.CreatePartner(f.ctx, CreatePartnerRequest{Code: "nb03", Name: "Other", Type: model.PartnerTypeFactory}, f.staff)
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("update", func(t *testing.T) {
		name := "Ningbo Paper Ltd"
		inactive := false
		updated, err := partners.UpdatePartner(f.ctx, created.ID.String(), UpdatePartnerRequest{Name: &name, IsActive: &inactive}, f.admin)
		require.NoError(t, err)
		assert.Equal(t, name, updated.Name)
		assert.False(t, updated.IsActive)

		empty := ""
		_, err = partners.UpdatePartner(f.ctx, created.ID.String(), UpdatePartnerRequest{Name: &empty}, f.admin)
		var ve *pricing.ValidationError
		require.ErrorAs(t, err, &ve)

		got, err := partners.GetPartner(f.ctx, created.ID.String())
		require.NoError(t, err)
		assert.Equal(t, name, got.Name, "failed update must roll back")
	})

	t.Run("list filters by type and search", func(t *testing.T) {
		factories, total, err := partners.GetPartners(f.ctx, model.PartnerTypeFactory, "", 1, 20)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		for _, p := range factories {
			assert.Equal(t, model.PartnerTypeFactory, p.Type)
		}

		found, total, err := partners.GetPartners(f.ctx, "", "acme", 1, 20)
		require.NoError(t, err)
		require.Equal(t, int64(1), total)
		assert.Equal(t, f.client.ID, found[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, partners.DeletePartner(f.ctx, created.ID.String(), f.admin))
		_, err := partners.GetPartner(f.ctx, created.ID.String())
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, partners.DeletePartner(f.ctx, uuid.NewString(), f.admin), ErrNotFound)
	})

	t.Run("audit trail", func(t *testing.T) {
		logs, total, err := audits.GetAuditLogs(f.ctx, repository.AuditFilter{EntityID: created.ID.String()}, 1, 20)
		require.NoError(t, err)
		require.Equal(t, int64(3), total)
		actions := make([]string, 0, len(logs))
		for _, l := range logs {
			actions = append(actions, l.Action)
			assert.Equal(t, "System", l.Username, "actors in this fixture have no user row")
		}
		assert.ElementsMatch(t, []string{model.ActionCreatePartner, model.ActionUpdatePartner, model.ActionDeletePartner}, actions)

		only, _, err := audits.GetAuditLogs(f.ctx, repository.AuditFilter{Action: model.ActionDeletePartner}, 1, 20)
		require.NoError(t, err)
		require.Len(t, only, 1)
		assert.Equal(t, f.admin.UserID.String(), only[0].UserID)
	})
}
