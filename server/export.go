package server

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/greut/iiif-tiler/iiif"
	jsoniter "github.com/json-iterator/go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type exported struct {
	request iiif.Request
	data    []byte
	err     error
}

// exportRequests lists the derivatives of an image: every tile along with
// the full size image.
func (s *Server) exportRequests(id string, info *iiif.Image) []iiif.Request {
	var requests []iiif.Request
	if len(info.Tiles) > 0 {
		requests = iiif.Tiles(s.config.Prefix, id, info.Tiles[0].Width, info.Width, info.Height)
	}
	full := iiif.NewRequest(s.config.Prefix, id, iiif.FullRegion, iiif.FullSize, iiif.NoRotation, iiif.DefaultQuality, iiif.JPG)
	return append(requests, full)
}

// export fetches every derivative, all of them being read even when some
// are missing.
func (s *Server) export(ctx context.Context, requests []iiif.Request) []exported {
	p := pool.NewWithResults[exported]().WithMaxGoroutines(s.config.Workers)
	for _, r := range requests {
		r := r
		p.Go(func() exported {
			data, err := s.derivative(ctx, r)
			return exported{request: r, data: data, err: err}
		})
	}
	return p.Wait()
}

// ExportHandler responds with a zip archive of the tiles of an image. The
// archive is only sent when every derivative could be read.
func (s *Server) ExportHandler(w http.ResponseWriter, r *http.Request) {
	id, err := iiif.DecodeID(mux.Vars(r)["identifier"])
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := r.Context()
	buffer, err := s.infoDocument(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var info iiif.Image
	if err := json.Unmarshal(buffer, &info); err != nil {
		s.fail(w, r, err)
		return
	}

	results := s.export(ctx, s.exportRequests(id, &info))

	failed := 0
	for _, result := range results {
		if result.err != nil {
			failed++
			s.logger.Warn("cannot export",
				zap.String("id", id),
				zap.String("path", result.request.String()),
				zap.Error(result.err))
		}
	}
	if failed > 0 {
		message := fmt.Sprintf("%d of %d derivatives are missing", failed, len(results))
		http.Error(w, message, http.StatusConflict)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/zip")
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", iiif.EncodeID(id)))

	archive := zip.NewWriter(w)
	for _, result := range results {
		f, err := archive.CreateHeader(&zip.FileHeader{
			Name:     result.request.RelativePath(),
			Method:   zip.Store,
			Modified: time.Now(),
		})
		if err == nil {
			_, err = f.Write(result.data)
		}
		if err != nil {
			s.logger.Error("cannot write archive", zap.String("id", id), zap.Error(err))
			return
		}
	}
	if err := archive.Close(); err != nil {
		s.logger.Error("cannot write archive", zap.String("id", id), zap.Error(err))
	}
}
