package server

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/greut/iiif-tiler/iiif"
	"github.com/greut/iiif-tiler/store"
	"github.com/greut/iiif-tiler/transform"
	"go.uber.org/zap"
)

// ImageHandler serves a derivative.
func (s *Server) ImageHandler(w http.ResponseWriter, r *http.Request) {
	request, err := iiif.ParseRequest(r.URL.EscapedPath())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := r.Context()
	buffer, err := s.derivative(ctx, request)
	if errors.Is(err, store.ErrNotFound) && !request.Rotation.IsIdentity() {
		buffer, err = s.rotated(ctx, request)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	filename := strings.NewReplacer("/", "_", ":", "_", ",", "").Replace(
		fmt.Sprintf("%s-%s-%s-%s-%s.%s", request.ID, request.Region, request.Size, request.Rotation, request.Quality, request.Format))

	disposition := "inline"
	if _, present := r.URL.Query()["dl"]; present {
		disposition = "attachment"
	}

	header := w.Header()
	header.Set("Content-Type", request.Format.MIMEType())
	header.Set("Content-Disposition", fmt.Sprintf("%s; filename=%s", disposition, filename))
	s.cacheHeaders(header, request.String())

	http.ServeContent(w, r, filename, time.Time{}, bytes.NewReader(buffer))
}

// InfoHandler responds with the image technical properties.
func (s *Server) InfoHandler(w http.ResponseWriter, r *http.Request) {
	id, err := iiif.DecodeID(mux.Vars(r)["identifier"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	buffer, err := s.infoDocument(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	header := w.Header()
	if strings.Contains(r.Header.Get("Accept"), "application/ld+json") {
		header.Set("Content-Type", "application/ld+json")
	} else {
		header.Set("Content-Type", "application/json")
	}
	s.cacheHeaders(header, r.URL.Path)

	http.ServeContent(w, r, "info.json", time.Time{}, bytes.NewReader(buffer))
}

// RedirectHandler sends the base URL of an image to its info.json.
func (s *Server) RedirectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := iiif.DecodeID(mux.Vars(r)["identifier"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}

	base := iiif.ServiceURL(fmt.Sprintf("%s://%s", scheme, host), s.config.Prefix, id)
	http.Redirect(w, r, base+"/"+store.InfoPath, http.StatusSeeOther)
}

func (s *Server) cacheHeaders(header http.Header, key string) {
	header.Set("ETag", getETag(key))
	header.Set("Cache-Control", fmt.Sprintf("max-age=%v, public", s.config.Cache.HTTP))
}

// fail maps the error onto its HTTP status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var grammar *iiif.GrammarError
	switch {
	case errors.As(err, &grammar):
		e := grammar.HTTPError()
		http.Error(w, e.Message, e.StatusCode)
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, transform.ErrResourceExhausted):
		s.logger.Warn("cannot render", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "image is too large to be rendered", http.StatusServiceUnavailable)
	case errors.Is(err, transform.ErrUnsupported):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	default:
		s.logger.Error("cannot serve", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func getETag(str string) string {
	return fmt.Sprintf("\"%x\"", sha1.Sum([]byte(str)))
}
