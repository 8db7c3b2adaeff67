package ensemble

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"

	"golang.org/x/crypto/blake2b"
)

// blobMagic and blobVersion open the self-describing byte layout Design
// Notes §9 asks for in place of an object-stream serializer: an
// unrecognized magic or a version this build doesn't understand fails
// closed rather than attempting to interpret bytes it can't trust.
const blobMagic uint32 = 0x4252_4b45 // "BRKE"
const blobVersion uint16 = 1

// Marshal serializes the ensemble into a self-describing, checksummed blob
// suitable for a model sink's opaque byte payload.
func (e *Ensemble) Marshal() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var body bytes.Buffer
	if err := binary.Write(&body, binary.BigEndian, blobVersion); err != nil {
		return nil, err
	}
	if err := binary.Write(&body, binary.BigEndian, e.weights); err != nil {
		return nil, err
	}
	for _, n := range e.nets {
		if err := writeNet(&body, n); err != nil {
			return nil, err
		}
	}

	checksum := blake2b.Sum256(body.Bytes())

	var out bytes.Buffer
	if err := binary.Write(&out, binary.BigEndian, blobMagic); err != nil {
		return nil, err
	}
	out.Write(checksum[:])
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

// Unmarshal replaces e's net parameters and combination weights with those
// decoded from data, verifying the magic, checksum and version first. A
// mismatch on any of those fails closed: e is left untouched and an error
// is returned, matching Design Notes §9's "old versions ... fail closed".
func (e *Ensemble) Unmarshal(data []byte) error {
	if len(data) < 4+blake2b.Size256 {
		return fmt.Errorf("ensemble: blob too short")
	}
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return err
	}
	if magic != blobMagic {
		return fmt.Errorf("ensemble: bad magic %#x", magic)
	}

	checksum := make([]byte, blake2b.Size256)
	if _, err := io.ReadFull(r, checksum); err != nil {
		return err
	}

	body := data[4+blake2b.Size256:]
	got := blake2b.Sum256(body)
	if !bytes.Equal(got[:], checksum) {
		return fmt.Errorf("ensemble: checksum mismatch")
	}

	br := bytes.NewReader(body)
	var version uint16
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return err
	}
	if version != blobVersion {
		return fmt.Errorf("ensemble: unsupported blob version %d", version)
	}

	var weights [Size]float64
	if err := binary.Read(br, binary.BigEndian, &weights); err != nil {
		return err
	}

	var nets [Size]*net
	for i := 0; i < Size; i++ {
		n, err := readNet(br)
		if err != nil {
			return err
		}
		nets[i] = n
	}

	e.mu.Lock()
	e.weights = weights
	e.nets = nets
	e.mu.Unlock()
	return nil
}

func writeNet(w *bytes.Buffer, n *net) error {
	if err := binary.Write(w, binary.BigEndian, int32(n.hidden)); err != nil {
		return err
	}
	for _, v := range []float64{n.momentum, n.l2, n.learningRate, n.b2} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, n.w1.RawMatrix().Data); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, n.b1.RawVector().Data); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, n.w2.RawVector().Data)
}

func readNet(r *bytes.Reader) (*net, error) {
	var hidden int32
	if err := binary.Read(r, binary.BigEndian, &hidden); err != nil {
		return nil, err
	}

	var momentum, l2, learningRate, b2 float64
	for _, v := range []*float64{&momentum, &l2, &learningRate, &b2} {
		if err := binary.Read(r, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	// Construct a zeroed net of the right shape, then overwrite its
	// parameters with the decoded values; the rng is unused since every
	// weight is about to be replaced.
	n := newNet(int(hidden), momentum, l2, learningRate, rand.New(rand.NewSource(0)))
	n.b2 = b2

	w1 := n.w1.RawMatrix().Data
	if err := binary.Read(r, binary.BigEndian, w1); err != nil {
		return nil, err
	}
	b1 := n.b1.RawVector().Data
	if err := binary.Read(r, binary.BigEndian, b1); err != nil {
		return nil, err
	}
	w2 := n.w2.RawVector().Data
	if err := binary.Read(r, binary.BigEndian, w2); err != nil {
		return nil, err
	}
	return n, nil
}
