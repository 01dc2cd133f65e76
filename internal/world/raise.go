package world

// neighborProbe результат проверки соседнего слота
type neighborProbe struct {
	coord  CellCoord
	exists bool
	tile   Tile
}

// raiseContext состояние одного подъёма: исходные координаты, соседи
// на верхнем (layer+1) и нижнем (layer) слоях и уже сшитые направления.
type raiseContext struct {
	target    CellCoord
	top       [DirectionCount]neighborProbe
	bottom    [DirectionCount]neighborProbe
	connected [DirectionCount]bool
}

// probe проверяет слот: вне карты и пустой слот дают exists == false
func (s *CellState) probe(c CellCoord) neighborProbe {
	p := neighborProbe{coord: c}
	tile, ok := s.Tile(c)
	if ok {
		p.exists = true
		p.tile = tile
	}
	return p
}

// raiseTerrain поднимает ячейку c на слой выше и сшивает новый уступ с соседями.
//
// callerLayer: слой вызывающего подъёма (для внешнего вызова: число слоёв).
// Рекурсия всегда идёт на слой ниже, поэтому c.Layer обязан быть строго меньше
// callerLayer; иначе подъём отклоняется, что гарантирует завершение на слое 0.
func (s *CellState) raiseTerrain(c CellCoord, callerLayer int) {
	// Отклонённым считается только подъём из команды. Вложенный подъём под
	// пустым слотом штатно ничего не делает и на счётчик не влияет.
	reject := func() {
		if callerLayer == len(s.layers) {
			s.stats.RaisesRejected++
		}
	}

	// Верхний слой поднять некуда, пустую ячейку поднимать нечего
	if !s.InBounds(c) || c.Layer+1 >= len(s.layers) {
		reject()
		return
	}
	if c.Layer >= callerLayer {
		s.log.Error("RaiseTerrain %s: слой не меньше слоя вызывающего подъёма %d", c, callerLayer)
		return
	}
	if _, ok := s.Cell(c); !ok {
		reject()
		return
	}

	flat, ok := s.tiles.FindMatching(Heights{})
	if !ok {
		reject()
		s.log.Warn("RaiseTerrain %s: в каталоге нет плоской плитки, подъём отменён", c)
		return
	}

	s.setCell(c.Above(), Cell{Tile: flat})
	s.deleteCell(c)
	s.stats.RaisesApplied++

	rc := s.probeNeighbors(c)
	s.connectTop(rc)
	s.connectDiagonals(rc)
	if c.Layer > 0 {
		s.buildFoundation(rc)
	}
	s.connectBottom(rc)
}

// probeNeighbors запоминает соседей по всем восьми направлениям на обоих слоях
func (s *CellState) probeNeighbors(c CellCoord) *raiseContext {
	rc := &raiseContext{target: c}
	for _, d := range Directions {
		n := c.Neighbor(d)
		rc.bottom[d] = s.probe(n)
		rc.top[d] = s.probe(n.Above())
	}
	return rc
}

// connectTop опускает обращённые к поднятой ячейке углы верхних соседей до её
// основания (0), получая переходный склон на месте соседа.
func (s *CellState) connectTop(rc *raiseContext) {
	for _, d := range Directions {
		p := rc.top[d]
		if !p.exists {
			continue
		}
		heights := p.tile.Heights.With(0, facingCorners(d)...)
		s.stitch(rc.target, p.coord, heights, d, "top")
		rc.connected[d] = true
	}
}

// connectDiagonals обрабатывает несшитые диагонали по их кардинальным составляющим.
// Оба кардинальных соседа сверху: под диагональю поднимается ячейка слоем ниже.
// Один: на нижнем слое синтезируется плитка, продолжающая склон этого соседа.
func (s *CellState) connectDiagonals(rc *raiseContext) {
	for _, d := range Diagonals {
		if rc.connected[d] {
			continue
		}

		a, b := d.Parts()
		hasA, hasB := rc.top[a].exists, rc.top[b].exists

		switch {
		case hasA && hasB:
			if rc.target.Layer > 0 {
				s.raiseTerrain(rc.bottom[d].coord.Below(), rc.target.Layer)
			}
			rc.connected[d] = true
		case hasA:
			rc.connected[d] = s.blendDiagonal(rc, d, a)
		case hasB:
			rc.connected[d] = s.blendDiagonal(rc, d, b)
		}
	}
}

// blendDiagonal пишет в диагональный слот нижнего слоя плитку, у которой
// углы, общие с поднятой ячейкой, подняты на высоту слоя, а углы, общие
// с кардинальным соседом сверху, повторяют его высоты со смещением на слой.
//
// Пустой слот не заполняется: выше слоя 0 плитка повисла бы в воздухе,
// а на слое 0 это дыра на месте уже поднятой ячейки. Возвращается false,
// и направление достаётся проходу buildFoundation.
func (s *CellState) blendDiagonal(rc *raiseContext, d, cardinal Direction) bool {
	slot := rc.bottom[d].coord
	if !s.InBounds(slot) {
		return true
	}

	current := s.probe(slot)
	if !current.exists {
		return false
	}
	heights := current.tile.Heights.With(s.layerHeight, facingCorners(d)...)

	// Сосед мог измениться на проходе connectTop, читаем актуальную плитку
	neighbor := s.probe(rc.top[cardinal].coord)
	if neighbor.exists {
		rel := cardinal.offset().sub(d.offset())
		for _, p := range sharedCorners(rel) {
			heights[p.Own] = neighbor.tile.Heights[p.Other] + s.layerHeight
		}
	}

	s.stitch(rc.target, slot, heights, d, "diagonal")
	return true
}

// buildFoundation подпирает уступ: для несшитых направлений без соседа на нижнем
// слое поднимается ячейка под соседом, образуя холм под новым плато.
func (s *CellState) buildFoundation(rc *raiseContext) {
	for _, d := range Directions {
		if rc.connected[d] {
			continue
		}
		n := rc.bottom[d].coord
		if !s.InBounds(n) || s.probe(n).exists {
			continue
		}
		s.raiseTerrain(n.Below(), rc.target.Layer)
	}
}

// connectBottom сшивает оставшиеся направления с соседями на исходном слое:
// обращённые к поднятой ячейке углы поднимаются на полную высоту слоя.
// Соседи читаются заново, так как рекурсивные подъёмы могли их изменить.
func (s *CellState) connectBottom(rc *raiseContext) {
	for _, d := range Directions {
		if rc.connected[d] {
			continue
		}
		p := s.probe(rc.bottom[d].coord)
		if !p.exists {
			continue
		}
		heights := p.tile.Heights.With(s.layerHeight, facingCorners(d)...)
		s.stitch(rc.target, p.coord, heights, d, "bottom")
		rc.connected[d] = true
	}
}

// stitch ищет плитку с нужными высотами и ставит её в слот. Если такой плитки
// нет, соединение остаётся разрывом: пишется предупреждение, остальные
// направления обрабатываются дальше.
func (s *CellState) stitch(origin, slot CellCoord, heights Heights, d Direction, pass string) {
	index, ok := s.tiles.FindMatching(heights)
	if !ok {
		s.stats.ConnectionGaps++
		s.log.Warn("RaiseTerrain %s: нет плитки %s для соседа %s %s (проход %s), остаётся разрыв",
			origin, heights, d, slot, pass)
		return
	}

	s.setCell(slot, Cell{Tile: index})
	s.stats.TilesStitched++
}
