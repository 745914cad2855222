// internal/clients/catalog_client.go
package clients

import (
	"context"
	"net/http"
	"net/url"

	"libraledger/internal/catalog"
)

// GetCopy looks a copy up by barcode.
func (c *CirculationClient) GetCopy(ctx context.Context, barcode string) (*catalog.CopyDetails, error) {
	var details catalog.CopyDetails
	if err := c.do(ctx, http.MethodGet, "/copies/"+url.PathEscape(barcode), nil, http.StatusOK, &details); err != nil {
		return nil, err
	}
	return &details, nil
}
