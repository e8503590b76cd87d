package output

import (
	"encoding/json"

	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

type socketJSON struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
	model.Record
}

type snapshotJSON struct {
	Taken    string       `json:"taken"`
	Observed int          `json:"observed"`
	Sockets  []socketJSON `json:"sockets"`
}

func ToJSON(snap *snapshot.Snapshot) (string, error) {
	out := snapshotJSON{
		Observed: snap.Observed(),
		Sockets:  make([]socketJSON, 0, snap.Len()),
	}
	if !snap.Taken().IsZero() {
		out.Taken = snap.Taken().Format("2006-01-02T15:04:05.000Z07:00")
	}
	for _, id := range snap.Identities() {
		rec, _ := snap.Get(id)
		out.Sockets = append(out.Sockets, socketJSON{
			Local:  id.Local().String(),
			Remote: id.Remote().String(),
			Record: rec,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
