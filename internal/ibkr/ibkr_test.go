package ibkr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinanceClient_FetchStatement(t *testing.T) {
	newServer := func(t *testing.T, notReady int) (*httptest.Server, *int) {
		t.Helper()
		polls := 0
		mux := http.NewServeMux()
		var srv *httptest.Server
		mux.HandleFunc("/SendRequest", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "tok", r.URL.Query().Get("t"))
			assert.Equal(t, "42", r.URL.Query().Get("q"))
			fmt.Fprintf(w, `<FlexStatementResponse timestamp="x"><Status>Success</Status><ReferenceCode>777</ReferenceCode><Url>%s/GetStatement</Url></FlexStatementResponse>`, srv.URL)
		})
		mux.HandleFunc("/GetStatement", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "777", r.URL.Query().Get("q"))
			polls++
			if polls <= notReady {
				_, _ = w.Write([]byte(`<FlexStatementResponse><Status>Warn</Status><ErrorCode>1019</ErrorCode><ErrorMessage>Statement generation in progress.</ErrorMessage></FlexStatementResponse>`))
				return
			}
			_, _ = w.Write([]byte(statementXML))
		})
		srv = httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return srv, &polls
	}

	newClient := func(baseURL string) *FinanceClient {
		c := NewFinanceClient(baseURL, zerolog.Nop())
		c.backoff = time.Millisecond
		c.maxBackoff = 2 * time.Millisecond
		return c
	}

	t.Run("retries while statement is generated", func(t *testing.T) {
		srv, polls := newServer(t, 2)

		st, err := newClient(srv.URL).FetchStatement(context.Background(), "tok", "42")
		require.NoError(t, err)

		assert.Equal(t, 3, *polls)
		assert.Equal(t, "U123", st.AccountID)
		assert.Len(t, st.Lots, 3)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		srv, _ := newServer(t, 100)
		c := newClient(srv.URL)
		c.maxAttempts = 3

		_, err := c.FetchStatement(context.Background(), "tok", "42")
		assert.ErrorContains(t, err, "not ready")
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := newClient("http://unused").FetchStatement(context.Background(), "", "42")
		assert.Error(t, err)
	})
}
