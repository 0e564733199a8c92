package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/journeymidnight/blockfec/fec"
	"github.com/journeymidnight/blockfec/utils"
	"github.com/journeymidnight/blockfec/xlog"
)

type manifest struct {
	Size       int    `json:"size"`
	DataChunks int    `json:"dataChunks"`
	Digest     string `json:"digest"`
}

func digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func writeChunkFile(dir string, id uint32, payload []byte) error {
	name := filepath.Join(dir, fmt.Sprintf("%d.chunk", id))
	return ioutil.WriteFile(name, payload, 0644)
}

func encode(c *cli.Context) error {
	in := c.String("in")
	outDir := c.String("out")
	repair := c.Int("repair")

	data, err := ioutil.ReadFile(in)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.Errorf("%s is empty", in)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	k := utils.CeilDiv(len(data), fec.ChunkSize)
	chunk := make([]byte, fec.ChunkSize)
	for i := 0; i < k; i++ {
		start := i * fec.ChunkSize
		end := start + fec.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		n := copy(chunk, data[start:end])
		for j := n; j < fec.ChunkSize; j++ {
			chunk[j] = 0
		}
		if err := writeChunkFile(outDir, uint32(i), chunk); err != nil {
			return err
		}
	}

	if repair > 0 {
		out := fec.NewRepairChunks(repair)
		if err := fec.BuildRepairChunks(data, out); err != nil {
			return err
		}
		for i := 0; i < out.Count(); i++ {
			if err := writeChunkFile(outDir, out.IDs[i], out.Payload(i)); err != nil {
				return err
			}
		}
	}

	m := manifest{Size: len(data), DataChunks: k, Digest: digest(data)}
	buf, err := json.Marshal(&m)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(filepath.Join(outDir, "manifest.json"), buf, 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %d data chunks and %d repair chunks to %s\n", k, repair, outDir)
	return nil
}

func decode(c *cli.Context) error {
	inDir := c.String("in")
	out := c.String("out")

	buf, err := ioutil.ReadFile(filepath.Join(inDir, "manifest.json"))
	if err != nil {
		return err
	}
	var m manifest
	if err := json.Unmarshal(buf, &m); err != nil {
		return err
	}

	d, err := fec.NewDecoder(m.Size)
	if err != nil {
		return err
	}
	defer d.Close()

	files, err := ioutil.ReadDir(inDir)
	if err != nil {
		return err
	}
	var names []string
	for _, f := range files {
		if strings.HasSuffix(f.Name(), ".chunk") {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	fed := 0
	for _, name := range names {
		if d.DecodeReady() {
			break
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, ".chunk"), 10, 32)
		if err != nil {
			return errors.Wrapf(err, "bad chunk file name %s", name)
		}
		payload, err := ioutil.ReadFile(filepath.Join(inDir, name))
		if err != nil {
			return err
		}
		if err := d.ProvideChunk(payload, uint32(id)); err != nil {
			return err
		}
		fed++
	}
	if !d.DecodeReady() {
		return errors.Errorf("not decodable: only %d usable chunks in %s", d.ChunksReceived(), inDir)
	}

	obj := make([]byte, 0, d.ChunkCount()*fec.ChunkSize)
	for i := 0; i < d.ChunkCount(); i++ {
		chunk, err := d.GetDataChunk(i)
		if err != nil {
			return err
		}
		obj = append(obj, chunk...)
	}
	obj = obj[:m.Size]

	if got := digest(obj); got != m.Digest {
		return errors.Errorf("digest mismatch: manifest %s, decoded %s", m.Digest, got)
	}
	if err := ioutil.WriteFile(out, obj, 0644); err != nil {
		return err
	}
	fmt.Printf("decoded %d bytes from %d chunks into %s\n", m.Size, fed, out)
	return nil
}

func main() {
	xlog.InitLog([]string{"fec-tool.log"}, zapcore.InfoLevel)
	utils.Check(fec.Init())

	app := cli.NewApp()
	app.Name = "fec-tool"
	app.Usage = "split an object into FEC chunks and put it back together"
	app.Commands = []*cli.Command{
		{
			Name:  "encode",
			Usage: "encode --in <file> --out <dir> --repair <n>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "in", Required: true},
				&cli.StringFlag{Name: "out", Value: "chunks"},
				&cli.IntFlag{Name: "repair", Value: 8, Aliases: []string{"r"}},
			},
			Action: encode,
		},
		{
			Name:  "decode",
			Usage: "decode --in <dir> --out <file>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "in", Value: "chunks"},
				&cli.StringFlag{Name: "out", Required: true},
			},
			Action: decode,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
	}
}
