package dm

// Axis reshuffling for image buffers. Buffers are always materialized in C
// order, so moving an axis is a strided copy rather than a stride
// annotation.

// transpose permutes the axes of d: axis i of the result is axis order[i]
// of the input.
func transpose(d ImageData, order []int) ImageData {
	n := len(d.Shape)
	item := d.Kind.ItemSize()

	shape := make([]int, n)
	strides := make([]int, n)
	stride := 1
	elemStrides := make([]int, n)
	for i := n - 1; i >= 0; i-- {
		elemStrides[i] = stride
		stride *= d.Shape[i]
	}
	for i, ax := range order {
		shape[i] = d.Shape[ax]
		strides[i] = elemStrides[ax]
	}

	out := make([]byte, len(d.Raw))
	idx := make([]int, n)
	src := 0
	for off := 0; off < len(out); off += item {
		copy(out[off:off+item], d.Raw[src*item:src*item+item])
		for i := n - 1; i >= 0; i-- {
			idx[i]++
			src += strides[i]
			if idx[i] < shape[i] {
				break
			}
			src -= idx[i] * strides[i]
			idx[i] = 0
		}
	}
	return ImageData{Kind: d.Kind, Shape: shape, Raw: out}
}

// moveAxis moves axis src to position dst, keeping the order of the other
// axes.
func moveAxis(d ImageData, src, dst int) ImageData {
	n := len(d.Shape)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != src {
			order = append(order, i)
		}
	}
	order = append(order[:dst], append([]int{src}, order[dst:]...)...)
	return transpose(d, order)
}

// expandDims inserts a length-1 axis at the given position. The buffer is
// unchanged.
func expandDims(d ImageData, axis int) ImageData {
	shape := make([]int, 0, len(d.Shape)+1)
	shape = append(shape, d.Shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, d.Shape[axis:]...)
	return ImageData{Kind: d.Kind, Shape: shape, Raw: d.Raw}
}

// squeezeAxis removes a length-1 axis. The buffer is unchanged.
func squeezeAxis(d ImageData, axis int) ImageData {
	shape := make([]int, 0, len(d.Shape)-1)
	shape = append(shape, d.Shape[:axis]...)
	shape = append(shape, d.Shape[axis+1:]...)
	return ImageData{Kind: d.Kind, Shape: shape, Raw: d.Raw}
}
