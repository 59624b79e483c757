package dist

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// SnapshotStruct converts a snapshot to a protobuf Struct, the form
// external tools consume.
func SnapshotStruct(s *HeapSnapshot) (*structpb.Struct, error) {
	slots := make([]any, len(s.Slots))
	for i, slot := range s.Slots {
		m := map[string]any{
			"addr": slot.Addr,
			"kind": slot.Kind,
		}
		switch {
		case slot.Free():
			m["next"] = slot.Next
		case slot.ExternType != "":
			m["type"] = slot.ExternType
		default:
			fields := make(map[string]any, len(slot.Fields))
			for _, f := range slot.Fields {
				fields[f.Name] = valueMap(f.Value)
			}
			m["fields"] = fields
		}
		slots[i] = m
	}

	globals := make(map[string]any, len(s.Globals))
	for _, g := range s.Globals {
		globals[g.Name] = valueMap(g.Value)
	}

	stack := make([]any, len(s.Stack))
	for i, v := range s.Stack {
		stack[i] = valueMap(v)
	}

	st, err := structpb.NewStruct(map[string]any{
		"cycle":    s.CycleID,
		"ip":       s.IP,
		"freeHead": s.FreeHead,
		"slots":    slots,
		"globals":  globals,
		"stack":    stack,
	})
	if err != nil {
		return nil, fmt.Errorf("dist: snapshot struct: %w", err)
	}
	return st, nil
}

func valueMap(v ValueSnapshot) map[string]any {
	m := map[string]any{"kind": v.Kind, "text": v.Text}
	if v.Ref != nil {
		m["ref"] = *v.Ref
	}
	return m
}

// SnapshotJSON renders a snapshot as indented JSON.
func SnapshotJSON(s *HeapSnapshot) ([]byte, error) {
	st, err := SnapshotStruct(s)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
}
