package cli_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/absmach/sparkpipe/cli"
	"github.com/absmach/sparkpipe/pkg/sdk"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	query sdk.Query
	res   sdk.Result
	err   error
}

func (f *fakeSDK) Topology(device string) (sdk.Topology, error) {
	if device == "missing" {
		return sdk.Topology{}, errors.New("unexpected response code 404: not found")
	}

	return sdk.Topology{Paths: []sdk.MetricPath{{Path: "spBv1.0/plant1/edge1/pump/temperature", Value: "21.5"}}}, nil
}

func (f *fakeSDK) CurrentTime() (string, error) {
	return "2024-05-01 00:00:00.000+0000", nil
}

func (f *fakeSDK) CurrentTagValue(device, tag string) (sdk.TagValue, error) {
	return sdk.TagValue{Device: device, Tag: tag, Value: "21.5"}, nil
}

func (f *fakeSDK) Status(q sdk.Query) (sdk.Result, error) {
	f.query = q

	return f.res, f.err
}

func (f *fakeSDK) StatusCount(q sdk.Query) (uint64, error) {
	f.query = q

	return 3, f.err
}

func (f *fakeSDK) TagHistory(q sdk.Query) (sdk.Result, error) {
	f.query = q

	return f.res, f.err
}

func (f *fakeSDK) TagHistoryCount(q sdk.Query) (uint64, error) {
	f.query = q

	return 60, f.err
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())

	return out.String(), errOut.String()
}

// The commands share a package level SDK, so these tests run serially.
func TestTopologyCmd(t *testing.T) {
	cli.SetSDK(&fakeSDK{})

	out, _ := run(t, cli.NewTopologyCmd())
	assert.Contains(t, out, "spBv1.0/plant1/edge1/pump/temperature")

	_, errOut := run(t, cli.NewTopologyCmd(), "missing")
	assert.Contains(t, errOut, "not found")

	out, _ = run(t, cli.NewTopologyCmd(), "a", "b")
	assert.Contains(t, out, "usage")
}

func TestTagsCmd(t *testing.T) {
	fake := &fakeSDK{res: sdk.Result{Rows: []sdk.Row{{Tag: "temperature", Value: "20"}}, Truncated: true}}
	cli.SetSDK(fake)

	out, _ := run(t, cli.NewTagsCmd(), "history",
		"--tag", "temperature",
		"--filter", "device = 'pump'",
		"--start", "2024-05-01",
		"--bucket", "auto",
		"--limit", "5",
	)
	assert.Equal(t, sdk.Query{
		Filter: "device = 'pump'",
		Tag:    "temperature",
		Start:  "2024-05-01",
		Bucket: "auto",
		Limit:  5,
	}, fake.query)
	assert.Contains(t, out, "20")
	assert.Contains(t, out, "truncated")

	out, _ = run(t, cli.NewTagsCmd(), "count", "--device", "pump")
	assert.Equal(t, "pump", fake.query.Device)
	assert.Contains(t, out, "60")

	out, _ = run(t, cli.NewTagsCmd(), "current", "pump", "temperature")
	assert.Contains(t, out, "21.5")
}

func TestStatusCmd(t *testing.T) {
	fake := &fakeSDK{res: sdk.Result{Message: "No results found"}}
	cli.SetSDK(fake)

	out, _ := run(t, cli.NewStatusCmd(), "history", "--status", "offline")
	assert.Equal(t, "offline", fake.query.Status)
	assert.Contains(t, out, "No results found")

	fake.err = errors.New("unexpected response code 400: invalid query")
	_, errOut := run(t, cli.NewStatusCmd(), "count", "--filter", "tag = 'x'")
	assert.Contains(t, errOut, "invalid query")
}

func TestTimeCmd(t *testing.T) {
	cli.SetSDK(&fakeSDK{})

	out, _ := run(t, cli.NewTimeCmd())
	assert.Contains(t, out, "2024-05-01 00:00:00.000+0000")
}
