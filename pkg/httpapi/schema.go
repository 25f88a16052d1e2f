package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/syndicate-project/gateway/pkg/coordinator"
	"github.com/syndicate-project/gateway/pkg/downloader"
	"github.com/syndicate-project/gateway/pkg/msclient"
)

// wireMessages names every JSON-over-HTTPS message an operator might need
// to construct or inspect by hand, mirroring the teacher's own `dfs
// config schema` command but reflecting this gateway's wire types
// instead of its configuration struct.
type wireMessages struct {
	UpdatesMsg      msclient.UpdatesMsg              `json:"updates_msg"`
	ReplyMsg        msclient.ReplyMsg                `json:"reply_msg"`
	VolumeMetadata  msclient.VolumeMetadata           `json:"volume_metadata"`
	CreateRequest   msclient.CreateRequest           `json:"create_request"`
	MkdirRequest    msclient.MkdirRequest            `json:"mkdir_request"`
	DeleteRequest   msclient.DeleteRequest           `json:"delete_request"`
	UpdateWriteMsg  msclient.UpdateWriteRequest      `json:"update_write_request"`
	ManifestMsg     downloader.ManifestMsg           `json:"manifest_msg"`
	CoordWriteMsg   coordinator.WriteMsg             `json:"coordinator_write_msg"`
	CoordWriteReply coordinator.WriteReply           `json:"coordinator_write_reply"`
}

// serveSchema handles GET /schema: a JSON Schema document for every wire
// message type, generated the same way the teacher's `dfs config schema`
// command reflects its config struct.
func serveSchema(w http.ResponseWriter, r *http.Request) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&wireMessages{})
	schema.Version = "https://json-schema.org/draft/2020-12/schema"
	schema.Title = "Syndicate Gateway Wire Messages"
	schema.Description = "JSON Schema for the gateway's MS, coordinator, and manifest wire messages"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		http.Error(w, "failed to generate schema", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
