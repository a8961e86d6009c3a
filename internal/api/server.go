package api

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/qnbit/internal/logger"
	"github.com/samcharles93/qnbit/internal/platform"
	"github.com/samcharles93/qnbit/internal/runner"
	"github.com/samcharles93/qnbit/internal/version"
	"github.com/samcharles93/qnbit/pkg/qnbit"
)

// DefaultMaxElements bounds the size of any matrix in a request.
const DefaultMaxElements = 1 << 22

type Server struct {
	registry    *platform.Registry
	exec        qnbit.Executor
	store       *WeightsStore
	log         logger.Logger
	clock       func() time.Time
	maxElements int
	defaults    Problem
}

// NewServer wires the handlers to a registry. exec runs GEMM tasks and may
// be nil to run them inline.
func NewServer(registry *platform.Registry, exec qnbit.Executor, store *WeightsStore, log logger.Logger) *Server {
	if store == nil {
		store = NewWeightsStore(0)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		registry:    registry,
		exec:        exec,
		store:       store,
		log:         log.With("component", "api"),
		clock:       time.Now,
		maxElements: DefaultMaxElements,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)

	e.GET("/v1/profiles", s.handleListProfiles)
	e.GET("/v1/profiles/:name", s.handleGetProfile)

	e.POST("/v1/sizes", s.handleSizes)
	e.POST("/v1/gemm", s.handleGemm)

	e.POST("/v1/weights", s.handleCreateWeights)
	e.GET("/v1/weights/:id", s.handleGetWeights)
	e.DELETE("/v1/weights/:id", s.handleDeleteWeights)
	e.POST("/v1/weights/:id/multiply", s.handleMultiply)
}

func (s *Server) handleHealth(c *echo.Context) error {
	f := s.registry.Features()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  version.String(),
		Profile:  f.Profile(),
		Features: f.String(),
	})
}

func (s *Server) handleListProfiles(c *echo.Context) error {
	out := ProfileList{
		Object:   "list",
		Detected: s.registry.Features().Profile(),
	}
	for _, name := range s.registry.Profiles() {
		info, err := s.profileInfo(name)
		if err != nil {
			return writeFailure(c, err)
		}
		out.Data = append(out.Data, info)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetProfile(c *echo.Context) error {
	name := c.Param("name")
	if !slices.Contains(s.registry.Profiles(), name) {
		return writeNotFound(c, fmt.Sprintf("profile %q not found", name))
	}
	info, err := s.profileInfo(name)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) profileInfo(name string) (ProfileInfo, error) {
	info := ProfileInfo{
		Object:   "profile",
		Name:     name,
		Detected: name == s.registry.Features().Profile(),
	}
	for _, bits := range []int{2, 4, 8} {
		d, err := s.registry.Select(name, bits)
		if err != nil {
			return ProfileInfo{}, err
		}
		info.Tables = append(info.Tables, tableInfo(d))
	}
	return info, nil
}

func (s *Server) handleSizes(c *echo.Context) error {
	req, err := decodeJSON[SizesRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	d, opts, err := s.resolve(req.Problem)
	if err != nil {
		return writeFailure(c, err)
	}
	batch := req.Batch
	if batch == 0 {
		batch = 1
	}
	sizes, err := runner.ComputeSizes(d, req.M, req.N, req.K, batch, opts)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, SizesResponse{
		ID:      newRequestID(),
		Object:  "sizes",
		Profile: d.Name(),
		Sizes:   sizes,
	})
}

func (s *Server) handleGemm(c *echo.Context) error {
	req, err := decodeJSON[GemmRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.checkMatrix("b", req.B, req.K, req.N); err != nil {
		return writeFailure(c, err)
	}
	if err := s.checkMatrix("a", req.A, req.M, req.K); err != nil {
		return writeFailure(c, err)
	}
	d, opts, err := s.resolve(req.Problem)
	if err != nil {
		return writeFailure(c, err)
	}
	opts.Symmetric = req.Symmetric

	w, err := runner.Prepare(d, req.B, req.K, req.N, opts, s.exec)
	if err != nil {
		return writeFailure(c, err)
	}
	resp, err := s.multiply(d.Name(), w, req.M, req.A, req.Bias, req.Reference)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateWeights(c *echo.Context) error {
	req, err := decodeJSON[WeightsRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.checkMatrix("b", req.B, req.K, req.N); err != nil {
		return writeFailure(c, err)
	}
	d, opts, err := s.resolve(req.Problem)
	if err != nil {
		return writeFailure(c, err)
	}
	opts.Symmetric = req.Symmetric

	w, err := runner.Prepare(d, req.B, req.K, req.N, opts, s.exec)
	if err != nil {
		return writeFailure(c, err)
	}
	info := s.store.Create(d.Name(), w, opts, s.clock())
	s.log.Debug("stored weights", "id", info.ID, "profile", info.Profile,
		"bits", info.BitWidth, "blk_len", info.BlkLen, "n", info.N, "k", info.K)
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleGetWeights(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("weights %q not found", id))
	}
	return c.JSON(http.StatusOK, rec.Info)
}

func (s *Server) handleDeleteWeights(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, fmt.Sprintf("weights %q not found", id))
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "weights.deleted", Deleted: true})
}

func (s *Server) handleMultiply(c *echo.Context) error {
	id := c.Param("id")
	rec, ok := s.store.Get(id)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("weights %q not found", id))
	}
	req, err := decodeJSON[MultiplyRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.checkMatrix("a", req.A, req.M, rec.Info.K); err != nil {
		return writeFailure(c, err)
	}
	resp, err := s.multiply(rec.Info.Profile, rec.Weights, req.M, req.A, req.Bias, req.Reference)
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) multiply(profile string, w *runner.Weights, m int, a, bias []float32, reference bool) (GemmResponse, error) {
	n := w.Quantized().N
	if bias != nil && len(bias) != n {
		return GemmResponse{}, newInvalidRequest(fmt.Sprintf("bias has %d values, want %d", len(bias), n))
	}
	start := s.clock()
	c, err := w.Multiply(m, a, bias, s.exec)
	if err != nil {
		return GemmResponse{}, err
	}
	s.log.Debug("gemm", "profile", profile, "compute_type", w.ComputeType().String(),
		"m", m, "n", n, "k", w.Quantized().K, "elapsed", s.clock().Sub(start))

	resp := GemmResponse{
		ID:          newRequestID(),
		Object:      "gemm",
		Profile:     profile,
		ComputeType: w.ComputeType().String(),
		M:           m,
		N:           n,
		C:           c,
	}
	if reference {
		diff := runner.MaxAbsDiff(c, w.Reference(m, a, bias))
		resp.MaxAbsError = &diff
	}
	return resp, nil
}

// SetDefaults sets the problem fields used when a request leaves them empty.
func (s *Server) SetDefaults(p Problem) {
	s.defaults = p
}

func (s *Server) resolve(p Problem) (*qnbit.Dispatch, runner.Options, error) {
	p = p.withDefaults(s.defaults)
	ct, err := qnbit.ParseComputeType(p.ComputeType)
	if err != nil {
		return nil, runner.Options{}, newInvalidRequest(err.Error())
	}
	d, err := s.registry.Select(p.Profile, p.BitWidth)
	if err != nil {
		return nil, runner.Options{}, newInvalidRequest(err.Error())
	}
	return d, runner.Options{BitWidth: p.BitWidth, BlkLen: p.BlkLen, ComputeType: ct}, nil
}

func (s *Server) checkMatrix(name string, v []float32, rows, cols int) error {
	switch {
	case rows <= 0 || cols <= 0:
		return newInvalidRequest(fmt.Sprintf("%s: dimensions must be positive, got %dx%d", name, rows, cols))
	case cols > s.maxElements/rows:
		return newInvalidRequest(fmt.Sprintf("%s: %dx%d exceeds the %d element limit", name, rows, cols, s.maxElements))
	case len(v) != rows*cols:
		return newInvalidRequest(fmt.Sprintf("%s: got %d values, want %d", name, len(v), rows*cols))
	}
	return nil
}
