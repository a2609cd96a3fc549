package utils

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	mask := uint64(1)<<bitLen - 1
	return (payload >> startBit) & mask
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := uint64(1)<<bitLen - 1
	payload &^= mask << startBit
	payload |= (value & mask) << startBit
	return payload
}

// signExtend interprets u as a bitLen-wide two's complement value.
func signExtend(u uint64, bitLen int, signed bool) int64 {
	if !signed || u&(uint64(1)<<(bitLen-1)) == 0 {
		return int64(u)
	}
	return int64(u) - int64(1)<<bitLen
}

// toTwosComplement converts raw to its bitLen-wide unsigned representation.
func toTwosComplement(raw int64, bitLen int) uint64 {
	mask := uint64(1)<<bitLen - 1
	return uint64(raw) & mask
}

// clampRaw bounds a raw counts value to what fits in bitLen bits.
func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		max := int64(1)<<bitLen - 1
		if raw < 0 {
			return 0
		}
		if raw > max {
			return max
		}
		return raw
	}
	min := -(int64(1) << (bitLen - 1))
	max := int64(1)<<(bitLen-1) - 1
	if raw < min {
		return min
	}
	if raw > max {
		return max
	}
	return raw
}
