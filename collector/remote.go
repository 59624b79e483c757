package collector

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/chazu/chainsaw/vm/dist"
)

// Remote forwards snapshots to a collector service over connect.
type Remote struct {
	client *connect.Client[dist.CollectRequest, dist.CollectResponse]
	url    string
}

// NewRemote creates a client for the collector service at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewRemote(baseURL string, httpClient connect.HTTPClient) *Remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Remote{
		client: connect.NewClient[dist.CollectRequest, dist.CollectResponse](
			httpClient,
			baseURL+dist.CollectProcedure,
			connect.WithCodec(dist.Codec{}),
		),
		url: baseURL,
	}
}

// Collect sends snap and validates the answer against it.
func (r *Remote) Collect(ctx context.Context, snap *dist.HeapSnapshot) ([]bool, error) {
	log.Debugf("sending cycle %s (%d slots) to %s", snap.CycleID, snap.Size(), r.url)
	resp, err := r.client.CallUnary(ctx, connect.NewRequest(&dist.CollectRequest{Snapshot: snap}))
	if err != nil {
		return nil, fmt.Errorf("collector: remote %s: %w", r.url, err)
	}
	return resp.Msg.Marks(snap)
}
