package server

// GridConfig 棋盘尺寸
type GridConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains 坐标是否落在棋盘内
func (g GridConfig) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

type BackgroundStyle struct {
	Size     string  `json:"size"`     // cover | contain
	Position string  `json:"position"` // center | top | bottom | left | right
	Opacity  float64 `json:"opacity"`
}

type Background struct {
	Image  string          `json:"image"` // data URL，空串表示无背景
	Config BackgroundStyle `json:"config"`
}

// BoardConfig 全房间共享的一份棋盘配置，后写者覆盖
type BoardConfig struct {
	Grid       GridConfig `json:"grid"`
	Background Background `json:"background"`
}

var (
	backgroundSizes     = map[string]bool{"cover": true, "contain": true}
	backgroundPositions = map[string]bool{"center": true, "top": true, "bottom": true, "left": true, "right": true}
)

func defaultBackgroundStyle() BackgroundStyle {
	return BackgroundStyle{Size: "cover", Position: "center", Opacity: 1}
}

func (r *Room) updateGrid(req GridRequest) {
	r.board.Grid = GridConfig{
		Width:  clampInt(req.Width, r.cfg.GridMin, r.cfg.GridMax),
		Height: clampInt(req.Height, r.cfg.GridMin, r.cfg.GridMax),
	}
	Log.Infow("grid updated", "room", r.ID, "width", r.board.Grid.Width, "height", r.board.Grid.Height)
	r.broadcast(OutBoardConfigUpdate, r.board)
}

func (r *Room) updateBackground(req BackgroundRequest) {
	switch {
	case req.ClearImage:
		r.board.Background.Image = ""
	case req.Image != nil:
		r.board.Background.Image = *req.Image
	}
	r.board.Background.Config = req.Style
	r.broadcast(OutBoardConfigUpdate, r.board)
}

// installBackground 分片重组完成后安装新背景
func (r *Room) installBackground(image string) {
	r.board.Background.Image = image
	Log.Infow("background installed", "room", r.ID, "bytes", len(image))
	r.broadcast(OutBoardConfigUpdate, r.board)
}
