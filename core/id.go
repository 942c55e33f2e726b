package core

import (
	"github.com/google/uuid"

	"pkt.systems/swissblade/schema"
)

func newTabID(toolID schema.ToolID) schema.TabID {
	return schema.TabID(string(toolID) + "-" + uuid.NewString())
}
