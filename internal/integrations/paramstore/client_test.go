package paramstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error

	values     map[string]string
	batchErr   error
	batchCalls [][]string
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batchCalls = append(f.batchCalls, in.Names)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := &ssm.GetParametersOutput{}
	for _, n := range in.Names {
		v, ok := f.values[n]
		if !ok {
			out.InvalidParameters = append(out.InvalidParameters, n)
			continue
		}
		out.Parameters = append(out.Parameters, types.Parameter{Name: strPtr(n), Value: strPtr(v)})
	}
	return out, nil
}

// fakeGetter implements Getter for token tests.
type fakeGetter struct {
	value string
	err   error
	names []string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return f.value, f.err
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_HappyPath_SecureString(t *testing.T) {
	typeStr := "SecureString"
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`), Type: types.ParameterType(typeStr),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}


func TestGetParameters_Batches(t *testing.T) {
	api := &fakeAPI{values: map[string]string{}}
	names := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		n := fmt.Sprintf("/app/p%d", i)
		api.values[n] = fmt.Sprintf("v%d", i)
		names = append(names, n)
	}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.GetParameters(context.Background(), names...)
	require.NoError(t, err)
	require.Len(t, got, 12)
	require.Equal(t, "v11", got["/app/p11"])
	require.Len(t, api.batchCalls, 2)
	require.Len(t, api.batchCalls[0], 10)
	require.Len(t, api.batchCalls[1], 2)
}

func TestGetParameters_UnknownName(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/a": "1"}}
	client, err := New(api)
	require.NoError(t, err)

	_, err = client.GetParameters(context.Background(), "/a", "/b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "/b")
}

func TestGetParameters_ApiError(t *testing.T) {
	api := &fakeAPI{batchErr: errors.New("throttled")}
	client, err := New(api)
	require.NoError(t, err)

	_, err = client.GetParameters(context.Background(), "/a")
	require.ErrorContains(t, err, "throttled")
}

func TestGetToken_HappyPath(t *testing.T) {
	g := &fakeGetter{value: `{"token":"sk-123"}`}
	tok, err := GetToken(context.Background(), g, " /app/open-ai-token ")
	require.NoError(t, err)
	require.Equal(t, "sk-123", tok)
	require.Equal(t, []string{"/app/open-ai-token"}, g.names)
}

func TestGetToken_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := GetToken(ctx, nil, "/p")
	require.ErrorContains(t, err, "nil")

	_, err = GetToken(ctx, &fakeGetter{}, " ")
	require.ErrorContains(t, err, "empty")

	_, err = GetToken(ctx, &fakeGetter{err: errors.New("denied")}, "/p")
	require.ErrorContains(t, err, "denied")

	_, err = GetToken(ctx, &fakeGetter{value: "not json"}, "/p")
	require.ErrorContains(t, err, "unmarshal")

	_, err = GetToken(ctx, &fakeGetter{value: `{"token":""}`}, "/p")
	require.ErrorContains(t, err, "API token is empty")
}
