package tags

import "voxelhud.ai/internal/sim/catalogs"

// BlockHandler picks which tools work on a block.
type BlockHandler struct {
	cats *catalogs.Registry
}

func NewBlockHandler(cats *catalogs.Registry) *BlockHandler {
	return &BlockHandler{cats: cats}
}

// Resolve returns at most Slots tool definitions matching the block, in catalog order.
func (h *BlockHandler) Resolve(blockID string, blockTags []string, held Held) []Resolved {
	defs := h.cats.Current().BlockTags.Defs
	return pick(matchDefs(defs, blockID, blockTags, held), nil)
}

// ToolIconString is the overlay code for the block's tools; never empty.
func (h *BlockHandler) ToolIconString(blockID string, blockTags []string, held Held) string {
	return IconString(h.Resolve(blockID, blockTags, held))
}
