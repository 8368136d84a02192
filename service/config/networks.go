package config

import (
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

var vocClasses = []string{
	"__background__",
	"aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat", "chair",
	"cow", "diningtable", "dog", "horse",
	"motorbike", "person", "pottedplant",
	"sheep", "sofa", "train", "tvmonitor",
}

var caviarClasses = []string{
	"__background__",
	"person",
}

type networkDef struct {
	dir        string
	caffeModel string
	classes    []string
}

var networks = map[string]networkDef{
	"vgg16":  {dir: "VGG16", caffeModel: "VGG16_faster_rcnn_final.caffemodel", classes: vocClasses},
	"zf":     {dir: "ZF", caffeModel: "ZF_faster_rcnn_final.caffemodel", classes: vocClasses},
	"caviar": {dir: "caviar", caffeModel: "caviar.caffemodel", classes: caviarClasses},
}

// NetworkNames lists the supported detector networks
func NetworkNames() []string {
	return []string{"caviar", "vgg16", "zf"}
}

// ResolveNetwork builds the file locations of a named network
func ResolveNetwork(name, modelsFolder, dataFolder string) (Network, error) {
	def, ok := networks[strings.ToLower(name)]
	if !ok {
		return Network{}, xerrors.Errorf("unknown network %q (expected one of %v)", name, NetworkNames())
	}

	return Network{
		Name:       strings.ToLower(name),
		Prototxt:   filepath.Join(modelsFolder, def.dir, "faster_rcnn_alt_opt", "faster_rcnn_test.pt"),
		CaffeModel: filepath.Join(dataFolder, "faster_rcnn_models", def.caffeModel),
		Classes:    def.classes,
	}, nil
}

// ClassIndex finds the output column of a class name. The background column
// never matches.
func (n Network) ClassIndex(name string) (int, error) {
	for i, c := range n.Classes {
		if i == 0 {
			continue
		}
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, xerrors.Errorf("class %q is not known to network %s", name, n.Name)
}
