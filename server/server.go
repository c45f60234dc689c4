// Package server serves the stored derivatives and their info.json over
// HTTP, following the IIIF Image API 2.1 URL scheme.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang/groupcache"
	"github.com/golang/protobuf/ptypes/wrappers"
	"github.com/gorilla/mux"
	"github.com/greut/iiif-tiler/config"
	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/store"
	"github.com/greut/iiif-tiler/transform"
	"go.uber.org/zap"
)

// peersPath is where the groupcache peers talk to each other.
const peersPath = "/_groupcache/"

// Server reads the derivatives from the store through groupcache. A
// derivative that was never produced is not rendered on demand, except for
// the rotated variants of a stored one.
type Server struct {
	config *config.Config
	store  store.Store
	engine transform.Engine
	logger *zap.Logger

	derivatives *groupcache.Group
	info        *groupcache.Group
	peers       *groupcache.HTTPPool
}

// New creates the server and its caches. The groupcache peers are only
// set up when the configuration lists some.
func New(c *config.Config, s store.Store, engine transform.Engine, logger *zap.Logger) *Server {
	srv := &Server{
		config: c,
		store:  s,
		engine: engine,
		logger: logger,
	}

	if len(c.Peers) > 0 {
		srv.peers = groupcache.NewHTTPPoolOpts(c.BaseURL, &groupcache.HTTPPoolOptions{BasePath: peersPath})
		srv.peers.Set(c.Peers...)
	}

	srv.derivatives = groupcache.NewGroup(groupName("derivatives"), c.Cache.DerivativesSize, groupcache.GetterFunc(srv.loadDerivative))
	srv.info = groupcache.NewGroup(groupName("info"), c.Cache.InfoSize, groupcache.GetterFunc(srv.loadInfo))

	return srv
}

// groupName picks the first free group name, groupcache refusing to
// register the same name twice.
func groupName(name string) string {
	candidate := name
	for i := 2; groupcache.GetGroup(candidate) != nil; i++ {
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
	return candidate
}

// Router builds the routes below the configured prefix.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter().UseEncodedPath()

	if s.peers != nil {
		router.PathPrefix(peersPath).Handler(s.peers)
	}

	// the configuration never holds an empty prefix
	routes := router.PathPrefix("/" + s.config.Prefix).Subrouter()

	routes.HandleFunc("/{identifier}/info.json", s.InfoHandler).Methods(http.MethodGet, http.MethodHead)
	routes.HandleFunc("/{identifier}/tiles.zip", s.ExportHandler).Methods(http.MethodGet)
	routes.HandleFunc("/{identifier}/{region}/{size}/{rotation}/{quality}.{format}", s.ImageHandler).Methods(http.MethodGet, http.MethodHead)
	routes.HandleFunc("/{identifier}", s.RedirectHandler).Methods(http.MethodGet, http.MethodHead)

	return WithLogging(WithCORS(router), s.logger)
}

// loadDerivative fills the cache with a stored derivative, the key being
// the canonical request path.
func (s *Server) loadDerivative(ctx groupcache.Context, key string, dest groupcache.Sink) error {
	r, err := iiif.ParseRequest(key)
	if err != nil {
		return err
	}

	data, err := s.store.Get(requestContext(ctx), r.ID, r.RelativePath())
	if err != nil {
		return err
	}

	s.logger.Debug("caching derivative", zap.String("key", key), zap.Int("bytes", len(data)))
	return dest.SetProto(&wrappers.BytesValue{Value: data})
}

// loadInfo fills the cache with a stored info.json, the key being the
// image identifier.
func (s *Server) loadInfo(ctx groupcache.Context, key string, dest groupcache.Sink) error {
	data, err := s.store.Get(requestContext(ctx), key, store.InfoPath)
	if err != nil {
		return err
	}
	return dest.SetBytes(data)
}

func requestContext(ctx groupcache.Context) context.Context {
	if c, ok := ctx.(context.Context); ok && c != nil {
		return c
	}
	return context.Background()
}

// derivative reads a stored derivative.
func (s *Server) derivative(ctx context.Context, r iiif.Request) ([]byte, error) {
	var value wrappers.BytesValue
	if err := s.derivatives.Get(ctx, r.String(), groupcache.ProtoSink(&value)); err != nil {
		return nil, err
	}
	return value.Value, nil
}

// rotated synthesizes a rotated derivative out of its stored unrotated
// variant. The result is not stored.
func (s *Server) rotated(ctx context.Context, r iiif.Request) ([]byte, error) {
	unrotated, err := s.derivative(ctx, r.WithRotation(iiif.NoRotation))
	if err != nil {
		return nil, err
	}

	rotation := iiif.Request{
		Prefix:   r.Prefix,
		ID:       r.ID,
		Region:   iiif.FullRegion,
		Size:     iiif.FullSize,
		Rotation: r.Rotation,
		Quality:  iiif.DefaultQuality,
		Format:   r.Format,
	}
	return transform.Apply(s.engine, unrotated, rotation)
}

// infoDocument reads a stored info.json.
func (s *Server) infoDocument(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	if err := s.info.Get(ctx, id, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, err
	}
	return data, nil
}
