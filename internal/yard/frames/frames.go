// Package frames decodes raw vision and UWB frames from their JSON wire
// format and annotates vision frames with resolved asset ids.
package frames

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
	"github.com/banshee-data/yard.fusion/internal/yard/geom"
)

// ErrMalformed is wrapped by every decoding error.
var ErrMalformed = errors.New("malformed frame")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// timestamp reads a millisecond epoch. Absent or zero yields the zero time so
// the engine substitutes its clock.
func timestamp(r gjson.Result) time.Time {
	ms := r.Get("timestamp_ms").Int()
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ParseVisionFrame decodes one vision datagram:
//
//	{"camera_id":"cam-1","timestamp_ms":1700000000000,
//	 "image":{"width":1920,"height":1080},
//	 "detections":[{"class":"truck","confidence":0.91,"bbox":[x,y,w,h],
//	                "track_id":"17","velocity":[vx,vy]}]}
//
// Detection order is preserved so assignment indexes line up with the
// original array.
func ParseVisionFrame(data []byte) (fusion.VisionFrame, error) {
	if !gjson.ValidBytes(data) {
		return fusion.VisionFrame{}, malformed("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	cameraID := strings.TrimSpace(root.Get("camera_id").String())
	if cameraID == "" {
		return fusion.VisionFrame{}, malformed("missing camera_id")
	}

	frame := fusion.VisionFrame{
		CameraID:  cameraID,
		Timestamp: timestamp(root),
		Resolution: geom.Resolution{
			Width:  int(root.Get("image.width").Int()),
			Height: int(root.Get("image.height").Int()),
		},
	}

	var parseErr error
	root.Get("detections").ForEach(func(key, item gjson.Result) bool {
		bbox := item.Get("bbox").Array()
		if len(bbox) != 4 {
			parseErr = malformed("detection %d: bbox needs 4 values, got %d", key.Int(), len(bbox))
			return false
		}
		det := fusion.Detection{
			Class:      item.Get("class").String(),
			Confidence: item.Get("confidence").Float(),
			BoundingBox: geom.BoundingBox{
				X:      bbox[0].Float(),
				Y:      bbox[1].Float(),
				Width:  bbox[2].Float(),
				Height: bbox[3].Float(),
			},
		}
		if tid := item.Get("track_id"); tid.Exists() && tid.Type != gjson.Null {
			det.TrackID = tid.String()
		}
		if vel := item.Get("velocity").Array(); len(vel) == 2 {
			det.PixelVelocity = &geom.Position2D{X: vel[0].Float(), Y: vel[1].Float()}
		}
		frame.Detections = append(frame.Detections, det)
		return true
	})
	if parseErr != nil {
		return fusion.VisionFrame{}, parseErr
	}
	return frame, nil
}

// ParseUWBFrame decodes one UWB gateway line:
//
//	{"timestamp_ms":1700000000000,
//	 "readings":[{"tag_id":"T-100","position":{"x":1,"y":2,"z":0.5},
//	              "accuracy_m":0.12,"anchors":["A1","A2"],"rssi_dbm":-71}]}
//
// Readings without a tag id or position are rejected with the whole frame.
func ParseUWBFrame(data []byte) (fusion.UWBFrame, error) {
	if !gjson.ValidBytes(data) {
		return fusion.UWBFrame{}, malformed("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.Get("readings").IsArray() {
		return fusion.UWBFrame{}, malformed("missing readings array")
	}

	frame := fusion.UWBFrame{Timestamp: timestamp(root)}

	var parseErr error
	root.Get("readings").ForEach(func(key, item gjson.Result) bool {
		tagID := strings.TrimSpace(item.Get("tag_id").String())
		if tagID == "" {
			parseErr = malformed("reading %d: missing tag_id", key.Int())
			return false
		}
		pos := item.Get("position")
		if !pos.Get("x").Exists() || !pos.Get("y").Exists() {
			parseErr = malformed("reading %d: missing position", key.Int())
			return false
		}
		r := fusion.UWBReading{
			TagID: tagID,
			Position: geom.Position3D{
				X: pos.Get("x").Float(),
				Y: pos.Get("y").Float(),
				Z: pos.Get("z").Float(),
			},
			Accuracy:       item.Get("accuracy_m").Float(),
			SignalStrength: item.Get("rssi_dbm").Float(),
		}
		for _, a := range item.Get("anchors").Array() {
			r.AnchorsUsed = append(r.AnchorsUsed, a.String())
		}
		frame.Readings = append(frame.Readings, r)
		return true
	})
	if parseErr != nil {
		return fusion.UWBFrame{}, parseErr
	}
	return frame, nil
}

// AnnotateVisionFrame writes each assignment's asset id into the matching
// detection as "asset_id". Detections without an assignment are untouched.
func AnnotateVisionFrame(data []byte, assignments []fusion.Assignment) ([]byte, error) {
	out := data
	for _, a := range assignments {
		var err error
		out, err = sjson.SetBytes(out, fmt.Sprintf("detections.%d.asset_id", a.Index), a.AssetID)
		if err != nil {
			return nil, fmt.Errorf("annotate detection %d: %w", a.Index, err)
		}
	}
	return out, nil
}
