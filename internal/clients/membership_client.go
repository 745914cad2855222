// internal/clients/membership_client.go
package clients

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"libraledger/internal/membership"
)

func (c *CirculationClient) RegisterMember(ctx context.Context, email, name, password string) (*membership.Member, error) {
	req := struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}{email, name, password}

	var member membership.Member
	if err := c.do(ctx, http.MethodPost, "/members", req, http.StatusCreated, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *CirculationClient) GetMember(ctx context.Context, id uuid.UUID) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodGet, "/members/"+id.String(), nil, http.StatusOK, &member); err != nil {
		return nil, err
	}
	return &member, nil
}
