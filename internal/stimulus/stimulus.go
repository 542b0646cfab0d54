// Package stimulus reads fixture instruction traces from the two text
// formats trdb_stimuli_to_trace_list and trdb_cvs_to_trace_list accept in
// original_source/serialize.c: a whitespace-separated key=value stream and
// a flat CSV. Both are used by the encode subcommand's --stimulus and
// --csv flags and by package tests that need an Instr sequence without
// hand-writing struct literals.
package stimulus

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pulp-platform/trdb/internal/rvt"
)

// stimulusKeys is the fixed field order trdb_stimuli_to_trace_list scans in,
// one key=value pair per Instr field.
var stimulusKeys = []string{
	"valid", "exception", "interrupt", "cause", "tval",
	"priv", "compressed", "addr", "instr",
}

// ParseStimulus reads the whitespace key=value format: each Instr record is
// nine "key= value" pairs, in stimulusKeys order, separated by arbitrary
// whitespace (including newlines).
func ParseStimulus(r io.Reader) ([]rvt.Instr, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var instrs []rvt.Instr
	for {
		values := make(map[string]string, len(stimulusKeys))
		done := false
		for _, key := range stimulusKeys {
			keyTok, ok := nextToken(scanner)
			if !ok {
				if len(values) == 0 {
					done = true
					break
				}
				return nil, rvt.NewErrorMsg(rvt.ErrFileScan, fmt.Sprintf("truncated record, expected %q=", key))
			}
			wantKey := key + "="
			if keyTok != wantKey {
				return nil, rvt.NewErrorMsg(rvt.ErrFileScan, fmt.Sprintf("expected %q, got %q", wantKey, keyTok))
			}
			valTok, ok := nextToken(scanner)
			if !ok {
				return nil, rvt.NewErrorMsg(rvt.ErrFileScan, fmt.Sprintf("missing value for %q", key))
			}
			values[key] = valTok
		}
		if done {
			break
		}

		in, err := instrFromStimulusFields(values)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, rvt.NewErrorMsg(rvt.ErrFileScan, err.Error())
	}
	return instrs, nil
}

func nextToken(scanner *bufio.Scanner) (string, bool) {
	if !scanner.Scan() {
		return "", false
	}
	return scanner.Text(), true
}

func instrFromStimulusFields(v map[string]string) (rvt.Instr, error) {
	valid, err := strconv.ParseInt(v["valid"], 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad valid: "+err.Error())
	}
	exception, err := strconv.ParseInt(v["exception"], 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad exception: "+err.Error())
	}
	interrupt, err := strconv.ParseInt(v["interrupt"], 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad interrupt: "+err.Error())
	}
	cause, err := strconv.ParseUint(v["cause"], 16, 32)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad cause: "+err.Error())
	}
	tval, err := strconv.ParseUint(v["tval"], 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad tval: "+err.Error())
	}
	priv, err := strconv.ParseUint(v["priv"], 16, 32)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad priv: "+err.Error())
	}
	compressed, err := strconv.ParseInt(v["compressed"], 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad compressed: "+err.Error())
	}
	addr, err := strconv.ParseUint(v["addr"], 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad addr: "+err.Error())
	}
	instr, err := strconv.ParseUint(v["instr"], 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad instr: "+err.Error())
	}

	return rvt.Instr{
		Valid:      valid != 0,
		Exception:  exception != 0,
		Interrupt:  interrupt != 0,
		Cause:      uint8(cause),
		Tval:       tval,
		Priv:       uint8(priv),
		IAddr:      addr,
		Instr:      instr,
		Compressed: compressed != 0,
	}, nil
}

// csvHeader is the fixed header line spec.md §6 requires.
const csvHeader = "VALID,ADDRESS,INSN,PRIVILEGE,EXCEPTION,ECAUSE,TVAL,INTERRUPT"

// ParseCSV reads the CSV format: a fixed header line, then one record per
// row in VALID,ADDRESS,INSN,PRIVILEGE,EXCEPTION,ECAUSE,TVAL,INTERRUPT
// order. Unlike the stimulus format, compressed is derived from instr&3!=3
// rather than read explicitly, matching trdb_cvs_to_trace_list.
func ParseCSV(r io.Reader) ([]rvt.Instr, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, rvt.NewErrorMsg(rvt.ErrFileScan, err.Error())
	}
	if strings.TrimRight(header, "\r\n") != csvHeader {
		return nil, rvt.NewErrorMsg(rvt.ErrFileScan, "bad csv header")
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = 8

	var instrs []rvt.Instr
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, rvt.NewErrorMsg(rvt.ErrFileScan, err.Error())
		}
		in, err := instrFromCSVRecord(record)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, in)
	}
	return instrs, nil
}

func instrFromCSVRecord(record []string) (rvt.Instr, error) {
	valid, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad VALID: "+err.Error())
	}
	addr, err := strconv.ParseUint(strings.TrimSpace(record[1]), 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad ADDRESS: "+err.Error())
	}
	instr, err := strconv.ParseUint(strings.TrimSpace(record[2]), 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad INSN: "+err.Error())
	}
	priv, err := strconv.ParseUint(strings.TrimSpace(record[3]), 16, 32)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad PRIVILEGE: "+err.Error())
	}
	exception, err := strconv.ParseInt(strings.TrimSpace(record[4]), 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad EXCEPTION: "+err.Error())
	}
	cause, err := strconv.ParseUint(strings.TrimSpace(record[5]), 16, 32)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad ECAUSE: "+err.Error())
	}
	tval, err := strconv.ParseUint(strings.TrimSpace(record[6]), 16, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad TVAL: "+err.Error())
	}
	interrupt, err := strconv.ParseInt(strings.TrimSpace(record[7]), 10, 64)
	if err != nil {
		return rvt.Instr{}, rvt.NewErrorMsg(rvt.ErrFileScan, "bad INTERRUPT: "+err.Error())
	}

	return rvt.Instr{
		Valid:      valid != 0,
		Exception:  exception != 0,
		Interrupt:  interrupt != 0,
		Cause:      uint8(cause),
		Tval:       tval,
		Priv:       uint8(priv),
		IAddr:      addr,
		Instr:      instr,
		Compressed: instr&3 != 3,
	}, nil
}
