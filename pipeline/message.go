package pipeline

// Topics of the pipeline stages.
const (
	TopicIntake     = "intake"
	TopicTiler      = "tiler"
	TopicWorker     = "worker"
	TopicInfo       = "info"
	TopicThumbnail  = "thumbnail"
	TopicIndex      = "index"
	TopicProperties = "properties"
)

// Message is the envelope exchanged between stages. It travels by value and
// the With* methods return modified copies, a stage never alters a message
// it received.
type Message struct {
	JobID      string
	ID         string
	FilePath   string
	TileSize   int
	IIIFPath   string
	Cleanup    bool
	Width      int
	Height     int
	Properties map[string]interface{}
}

// WithID sets the image identifier and its tile size.
func (m Message) WithID(id string, tileSize int) Message {
	m.ID = id
	m.TileSize = tileSize
	m.Properties = cloneProperties(m.Properties)
	return m
}

// WithIIIFPath targets a single derivative.
func (m Message) WithIIIFPath(path string) Message {
	m.IIIFPath = path
	m.Properties = cloneProperties(m.Properties)
	return m
}

// WithDimensions records the probed dimensions of the source.
func (m Message) WithDimensions(width, height int) Message {
	m.Width = width
	m.Height = height
	m.Properties = cloneProperties(m.Properties)
	return m
}

func cloneProperties(properties map[string]interface{}) map[string]interface{} {
	if properties == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		clone[k] = v
	}
	return clone
}
