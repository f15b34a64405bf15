package catalog

// builtinEntries is the wrist-band command table recovered from captures of
// the stock transmitter. Payloads are already packed at the reference time
// unit; "nothing" is the no-op used as wake-up traffic.
var builtinEntries = []Entry{
	{Name: "nothing", Hex: "aa aa 55 a1 21 21 21 18 8d a1 0a 40", Description: "no-op, used to wake receivers", Aliases: []string{"wake", "wake_up"}},
	{Name: "gold_fade_in", Hex: "aa aa 65 21 24 6d 61 23 11 61 2b 40", Aliases: []string{"gold"}},
	{Name: "gold_fast_fade", Hex: "aa aa 5b 61 24 6d 61 12 51 61 22 80"},
	{Name: "white_fastfade", Hex: "aa aa 56 a1 2d 6d 6d 52 51 61 0b", Aliases: []string{"white"}},
	{Name: "wine_fade_in", Hex: "aa aa 69 a1 21 2d 61 23 11 61 28 40"},
	{Name: "rand_blue_fade", Hex: "aa aa 61 21 0c a1 2d 62 62 61 0d 80", Aliases: []string{"blue_fade", "blue"}},
	{Name: "rand_red_fade", Hex: "aa aa 69 21 21 2d 61 22 62 61 19 40", Aliases: []string{"red_fade", "red"}},
	{Name: "rand_white_blink", Hex: "aa aa 52 a1 2d 6d 6d 59 1a a1 22 40"},
	{Name: "rand_turq_blink", Hex: "aa aa 4d a1 2d 61 2c 6d 93 61 24 40"},
}

// Builtin returns a copy of the built-in command table.
func Builtin() []Entry {
	out := make([]Entry, len(builtinEntries))
	copy(out, builtinEntries)
	return out
}
