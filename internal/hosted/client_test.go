package hosted_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-bundles/internal/bundle"
	"github.com/noah-isme/toko-bundles/internal/common"
	"github.com/noah-isme/toko-bundles/internal/hosted"
	"github.com/noah-isme/toko-bundles/internal/resilience"
)

func newClient(t *testing.T, srv *httptest.Server) *hosted.Client {
	t.Helper()
	cl, err := hosted.NewClient(hosted.ClientConfig{
		BaseURL:    srv.URL + "/",
		APIKey:     "key-1",
		ShopDomain: "demo.myshopify.com",
		HTTP:       resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1, BaseBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return cl
}

func TestNewClientRequiresKeyAndURL(t *testing.T) {
	_, err := hosted.NewClient(hosted.ClientConfig{APIKey: "k"})
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))
	_, err = hosted.NewClient(hosted.ClientConfig{BaseURL: "https://x"})
	require.Equal(t, common.CodeInvalidConfig, common.CodeOf(err))
}

func TestBundleSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/v1/bundle/b-1", r.URL.Path)
		require.Equal(t, "key-1", r.Header.Get(hosted.APIKeyHeader))
		require.Equal(t, "demo.myshopify.com", r.Header.Get(hosted.ShopDomainHeader))
		_, _ = w.Write([]byte(`{"bundle":{"id":"b-1","title":"Kit","handle":"kit","bundleType":"mix_and_match",
			"components":[],"pricing":{"discountType":"percentage","discountValue":"10"},"minSelections":2,"availableForSale":true}}`))
	}))
	defer srv.Close()

	def, err := newClient(t, srv).Bundle(context.Background(), "b-1")
	require.NoError(t, err)
	require.Equal(t, bundle.TypeMixAndMatch, def.Type)
	require.Equal(t, "10", def.Pricing.DiscountValue.String())
	require.Equal(t, 2, *def.MinSelections)
}

func TestInventoryAndPricePostSelections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body struct {
			SelectedComponents []bundle.Selection `json:"selectedComponents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SelectedComponents)
		switch r.URL.Path {
		case "/api/v1/bundle/b-1/inventory":
			_, _ = w.Write([]byte(`{"inventory":{"available":true,"status":"preorder","maxQuantity":99,"components":[]}}`))
		case "/api/v1/bundle/b-1/price":
			_, _ = w.Write([]byte(`{"price":{"originalPrice":{"amount":"35.00","currencyCode":"USD"},
				"bundlePrice":{"amount":"30.00","currencyCode":"USD"},"savings":{"amount":"5.00","currencyCode":"USD"},
				"savingsPercentage":14.29,"breakdown":[]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	cl := newClient(t, srv)

	inv, err := cl.Inventory(context.Background(), "b-1", nil)
	require.NoError(t, err)
	require.Equal(t, bundle.StatusPreorder, inv.Status)

	price, err := cl.Price(context.Background(), "b-1", []bundle.Selection{{ProductID: "p", VariantID: "v", Quantity: 1}})
	require.NoError(t, err)
	require.Equal(t, "30.00", price.BundlePrice.Amount)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
		msg    string
	}{
		{name: "not found", status: http.StatusNotFound, code: common.CodeBundleNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, code: common.CodeRateLimited},
		{name: "body code", status: http.StatusConflict, body: `{"code":"COMPONENT_OUT_OF_STOCK","message":"Towel sold out"}`, code: common.CodeComponentOutOfStock, msg: "Towel sold out"},
		{name: "envelope code", status: http.StatusBadRequest, body: `{"error":{"code":"INVALID_SELECTION"}}`, code: common.CodeInvalidSelection},
		{name: "unknown", status: http.StatusInternalServerError, body: `oops`, code: common.CodeUnknownError},
		{name: "foreign code", status: http.StatusBadRequest, body: `{"code":"SOMETHING_ELSE"}`, code: common.CodeUnknownError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newClient(t, srv).Bundle(context.Background(), "b-1")
			require.Error(t, err)
			require.Equal(t, tc.code, common.CodeOf(err))
			if tc.msg != "" {
				require.Equal(t, tc.msg, common.UserMessage(err))
			}
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cl := newClient(t, srv)
	srv.Close()

	_, err := cl.Bundle(context.Background(), "b-1")
	require.Equal(t, common.CodeNetworkError, common.CodeOf(err))
}
