package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"index.html":    {Data: []byte("<html>landing</html>")},
		"assets/app.js": {Data: []byte("console.log(1)")},
	}
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandler_ServesFilesAndFallsBack(t *testing.T) {
	h := newHandler(testFS())

	w := serve(h, "/assets/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "console.log(1)", w.Body.String())
	require.Contains(t, w.Header().Get("Cache-Control"), "max-age")

	w = serve(h, "/faq")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "landing")
}

func TestHandler_APIPathsDoNotFallBack(t *testing.T) {
	w := serve(newHandler(testFS()), "/api/unknown")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSPAHandler_EmbedsIndex(t *testing.T) {
	w := serve(SPAHandler(), "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Curhatin")
}
