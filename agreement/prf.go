package agreement

import (
	"temporal-sa/crypto-provider/hashing"
)

// tlsPRF expands secret into size bytes with the TLS 1.2 P_hash construction
// over label||seed.
func tlsPRF(acquirer hashing.Acquirer, algorithm string, secret, label, seed []byte, size int) ([]byte, error) {
	mac, err := hashing.NewHMAC(acquirer, algorithm, "", secret)
	if err != nil {
		return nil, err
	}
	defer mac.Close()

	labelSeed := make([]byte, 0, len(label)+len(seed))
	labelSeed = append(labelSeed, label...)
	labelSeed = append(labelSeed, seed...)

	out := make([]byte, 0, size)
	a := labelSeed
	for len(out) < size {
		if a, err = mac.HashData(a); err != nil {
			return nil, err
		}
		block, err := digestWrapped(mac, a, labelSeed)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out[:size], nil
}
