package component

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stub struct {
	name    string
	initErr error
	inited  bool
}

func (s *stub) Name() string { return s.name }
func (s *stub) Init(*Runtime) error {
	s.inited = true
	return s.initErr
}
func (s *stub) Routes(r chi.Router) {
	r.Get("/"+s.name, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
}

func reset(t *testing.T) {
	mu.Lock()
	saved := registry
	registry = map[string]Component{}
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = saved
		mu.Unlock()
	})
}

func TestMountInitsAndRoutesInNameOrder(t *testing.T) {
	reset(t)
	b, a := &stub{name: "beta"}, &stub{name: "alpha"}
	Register(b)
	Register(a)

	all := All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name())

	r := chi.NewRouter()
	require.NoError(t, Mount(r, &Runtime{}))
	assert.True(t, a.inited)
	assert.True(t, b.inited)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/beta", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestMountStopsOnInitError(t *testing.T) {
	reset(t)
	boom := errors.New("boom")
	Register(&stub{name: "bad", initErr: boom})

	err := Mount(chi.NewRouter(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "component bad")
}
