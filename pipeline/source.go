package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

// Loader decodes one image file into a BGR Mat
type Loader func(path string) (gocv.Mat, error)

// IMReadLoader reads color images through OpenCV
func IMReadLoader(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, xerrors.Errorf("error reading image %s", path)
	}
	return img, nil
}

// FrameSource yields the images of a folder in ascending filename order.
// Images are decoded only when Next reaches them.
type FrameSource struct {
	files  []string
	loader Loader
	next   int
}

func NewFrameSource(folder, ext string, loader Loader) (*FrameSource, error) {
	if loader == nil {
		loader = IMReadLoader
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, xerrors.Errorf("error listing source folder %s: %w", folder, err)
	}

	files := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	sort.Strings(files)

	return &FrameSource{
		files:  files,
		loader: loader,
	}, nil
}

// Next loads the following frame. ok is false once the folder is exhausted.
func (s *FrameSource) Next() (frame FrameData, ok bool, err error) {
	if s.next >= len(s.files) {
		return FrameData{}, false, nil
	}

	path := s.files[s.next]
	index := s.next
	s.next++

	img, err := s.loader(path)
	if err != nil {
		return FrameData{}, false, err
	}

	return FrameData{
		Mat:       img,
		Name:      filepath.Base(path),
		Index:     index,
		Timestamp: time.Now(),
	}, true, nil
}

// Len is the number of frames the folder holds
func (s *FrameSource) Len() int {
	return len(s.files)
}

func (s *FrameSource) Files() []string {
	return s.files
}
