package watermark

// Address is the 3-bit multiplexer select pattern. Bit 0 drives select
// line 1, bit 1 select line 2 and bit 2 select line 3.
type Address uint8

// AddressOf returns the select pattern for a channel.
func AddressOf(ch Channel) Address {
	return Address(ch) & 0b111
}

// Level returns the level for select line i (0..2).
func (a Address) Level(i int) Level {
	return Level((a>>uint(i))&1 == 1)
}

var selectLines = [3]Line{LineSelect1, LineSelect2, LineSelect3}
