package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/njoerd114/trailsync/internal/gateway"
	"github.com/njoerd114/trailsync/internal/model"
)

// HikeLister is the part of the remote gateway the wizard needs to check a
// connection.
type HikeLister interface {
	ListMyHikes(ctx context.Context, token string) ([]*model.Hike, error)
}

// CheckRemote verifies the URL, user and token by listing the user's remote
// hikes. It returns how many hikes the account already holds.
func CheckRemote(ctx context.Context, remote HikeLister, token string) (int, error) {
	hikes, err := remote.ListMyHikes(ctx, token)
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		return 0, fmt.Errorf("the remote service rejected the token")
	case errors.Is(err, gateway.ErrNotFound):
		return 0, fmt.Errorf("no hike API at that URL (HTTP 404)")
	case err != nil:
		return 0, err
	}
	return len(hikes), nil
}
