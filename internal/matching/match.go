package matching

// Match 撮合一笔 taker。
// same 是 taker 自己那一侧的 slab（剩余挂单用），opposite 是对手盘。
// 每次迭代先把所有可能失败的运算做完再改状态，所以报错时当前迭代不会留下半截修改；
// 之前已经完成的迭代保留，调用方要整体回滚就传 Clone 进来。
func Match(order *Order, same, opposite *Slab, q *EventQueue) (MatchResult, error) {
	var res MatchResult
	if order == nil {
		return res, ErrInvalidQty
	}
	if !order.Type.Valid() {
		return res, ErrInvalidOrderType
	}
	if !order.Side.Valid() || same.Side() != order.Side || opposite.Side() != order.Side.Opposite() {
		return res, ErrInvalidSide
	}
	if order.Quantity == 0 {
		return res, ErrInvalidQty
	}
	if order.Price == 0 {
		return res, ErrInvalidPrice
	}

	if order.Type == PostOnly {
		if best, ok := opposite.Best(); ok && order.Side.Crosses(order.Price, best.Price) {
			return res, ErrWouldMatchImmediately
		}
		if err := rest(order, same); err != nil {
			return res, err
		}
		res.Remaining = order.Quantity
		res.Rested = true
		res.Status = order.Status
		return res, nil
	}

	for order.Quantity > 0 {
		maker := opposite.head()
		if maker == nil || !order.Side.Crosses(order.Price, maker.Price) {
			break
		}

		fillQty := min(order.Quantity, maker.Quantity)
		makerLeft, err := checkedSub(maker.Quantity, fillQty)
		if err != nil {
			return res, err
		}
		takerLeft, err := checkedSub(order.Quantity, fillQty)
		if err != nil {
			return res, err
		}
		quote, err := checkedMul(fillQty, maker.Price)
		if err != nil {
			return res, err
		}
		quoteTotal, err := checkedAdd(res.QuoteQty, quote)
		if err != nil {
			return res, err
		}
		filledTotal, err := checkedAdd(res.Filled, fillQty)
		if err != nil {
			return res, err
		}

		fill := Fill{
			MakerOrderID:       maker.OrderID,
			MakerClientOrderID: maker.ClientOrderID,
			Maker:              maker.Owner,
			Price:              maker.Price,
			Quantity:           fillQty,
			MakerRemaining:     makerLeft,
		}
		if makerLeft == 0 {
			fill.Type = EventFill
			if _, err := opposite.Remove(maker.OrderID); err != nil {
				return res, err
			}
		} else {
			fill.Type = EventPartialFill
			maker.Quantity = makerLeft
			maker.Status = StatusPartialFill
		}

		order.Quantity = takerLeft
		if takerLeft == 0 {
			order.Status = StatusFill
		} else {
			order.Status = StatusPartialFill
		}
		res.QuoteQty = quoteTotal
		res.Filled = filledTotal
		res.Fills = append(res.Fills, fill)

		evicted, overwritten := q.InsertEvict(QueueEvent{
			Type:               fill.Type,
			Side:               order.Side,
			Owner:              order.Owner,
			Counterparty:       fill.Maker,
			Price:              fill.Price,
			Quantity:           fillQty,
			MakerRemaining:     makerLeft,
			MakerOrderID:       fill.MakerOrderID,
			TakerOrderID:       order.OrderID,
			MakerClientOrderID: fill.MakerClientOrderID,
			TakerClientOrderID: order.ClientOrderID,
			Timestamp:          order.Timestamp,
		})
		if overwritten {
			res.Evicted = append(res.Evicted, evicted)
		}
	}

	res.Remaining = order.Quantity
	res.Status = order.Status
	if order.Quantity > 0 && order.Type == Limit {
		if err := rest(order, same); err != nil {
			return res, err
		}
		res.Rested = true
	}
	return res, nil
}

func rest(order *Order, same *Slab) error {
	_, err := same.Insert(order.Market, Node{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Owner:         order.Owner,
		Price:         order.Price,
		Quantity:      order.Quantity,
		Status:        order.Status,
		Timestamp:     order.Timestamp,
	})
	return err
}
