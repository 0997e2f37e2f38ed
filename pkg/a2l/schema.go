package a2l

// Spec describes how the arguments of a keyword are laid out.
//
// A keyword with Args >= 0 takes exactly that many positional tokens. A
// keyword with Args < 0 takes every following token up to the next known
// keyword, /begin or /end. Inside a List block every token after the fixed
// arguments is a list item, even when it is spelled like a keyword, unless
// it is one of the block's Stop keywords. Raw blocks are kept as an opaque
// token stream up to their matching /end.
type Spec struct {
	Args int
	List bool
	Raw  bool
	// Stop lists the elements that may follow the items of a List block.
	Stop []string
}

func (s Spec) stops(kw string) bool {
	for _, k := range s.Stop {
		if k == kw {
			return true
		}
	}
	return false
}

const loose = -1

var schema = map[string]Spec{
	"ASAP2_VERSION": {Args: 2},
	"A2ML_VERSION":  {Args: 2},
	"A2ML":          {Raw: true},
	"IF_DATA":       {Raw: true},

	"PROJECT":    {Args: 2},
	"HEADER":     {Args: 1},
	"PROJECT_NO": {Args: 1},
	"VERSION":    {Args: 1},
	"MODULE":     {Args: 2},

	"MOD_PAR":                 {Args: 1},
	"ADDR_EPK":                {Args: 1},
	"EPK":                     {Args: 1},
	"SUPPLIER":                {Args: 1},
	"CUSTOMER":                {Args: 1},
	"CUSTOMER_NO":             {Args: 1},
	"USER":                    {Args: 1},
	"PHONE_NO":                {Args: 1},
	"ECU":                     {Args: 1},
	"CPU_TYPE":                {Args: 1},
	"NO_OF_INTERFACES":        {Args: 1},
	"ECU_CALIBRATION_OFFSET":  {Args: 1},
	"SYSTEM_CONSTANT":         {Args: 2},
	"MEMORY_SEGMENT":          {Args: 12},
	"MEMORY_LAYOUT":           {Args: 8},
	"CALIBRATION_METHOD":      {Args: 2},
	"CALIBRATION_HANDLE":      {Args: 0},
	"CALIBRATION_HANDLE_TEXT": {Args: 1},

	"MOD_COMMON":             {Args: 1},
	"BYTE_ORDER":             {Args: 1},
	"ALIGNMENT_BYTE":         {Args: 1},
	"ALIGNMENT_WORD":         {Args: 1},
	"ALIGNMENT_LONG":         {Args: 1},
	"ALIGNMENT_INT64":        {Args: 1},
	"ALIGNMENT_FLOAT16_IEEE": {Args: 1},
	"ALIGNMENT_FLOAT32_IEEE": {Args: 1},
	"ALIGNMENT_FLOAT64_IEEE": {Args: 1},
	"DATA_SIZE":              {Args: 1},
	"DEPOSIT":                {Args: 1},
	"S_REC_LAYOUT":           {Args: 1},

	"CHARACTERISTIC":               {Args: 9},
	"MEASUREMENT":                  {Args: 8},
	"AXIS_PTS":                     {Args: 10},
	"AXIS_DESCR":                   {Args: 6},
	"RECORD_LAYOUT":                {Args: 1},
	"FUNCTION":                     {Args: 2},
	"GROUP":                        {Args: 2},
	"COMPU_METHOD":                 {Args: 5},
	"COMPU_TAB":                    {Args: 4},
	"COMPU_VTAB":                   {Args: 4},
	"COMPU_VTAB_RANGE":             {Args: 3},
	"UNIT":                         {Args: 4},
	"USER_RIGHTS":                  {Args: 1},
	"TYPEDEF_AXIS":                 {Args: 9},
	"TYPEDEF_CHARACTERISTIC":       {Args: 8},
	"TYPEDEF_MEASUREMENT":          {Args: 8},
	"TYPEDEF_STRUCTURE":            {Args: 3},
	"STRUCTURE_COMPONENT":          {Args: 3},
	"INSTANCE":                     {Args: 4},
	"TRANSFORMER":                  {Args: 7},
	"BLOB":                         {Args: 4},
	"FRAME":                        {Args: 4},
	"FRAME_MEASUREMENT":            {Args: loose},
	"VARIANT_CODING":               {Args: 0},
	"VAR_SEPARATOR":                {Args: 1},
	"VAR_NAMING":                   {Args: 1},
	"VAR_CRITERION":                {Args: 2, List: true, Stop: []string{"VAR_MEASUREMENT", "VAR_SELECTION_CHARACTERISTIC"}},
	"VAR_CHARACTERISTIC":           {Args: 1, List: true},
	"VAR_FORBIDDEN_COMB":           {Args: 0, List: true},
	"VAR_ADDRESS":                  {Args: 0},
	"VAR_MEASUREMENT":              {Args: 1},
	"VAR_SELECTION_CHARACTERISTIC": {Args: 1},

	// sub-elements
	"DISPLAY_IDENTIFIER":    {Args: 1},
	"SYMBOL_LINK":           {Args: 2},
	"FORMAT":                {Args: 1},
	"BIT_MASK":              {Args: 1},
	"ECU_ADDRESS":           {Args: 1},
	"ECU_ADDRESS_EXTENSION": {Args: 1},
	"ADDRESS_TYPE":          {Args: 1},
	"ARRAY_SIZE":            {Args: 1},
	"EXTENDED_LIMITS":       {Args: 2},
	"MAX_REFRESH":           {Args: 2},
	"MATRIX_DIM":            {Args: loose},
	"NUMBER":                {Args: 1},
	"PHYS_UNIT":             {Args: 1},
	"READ_ONLY":             {Args: 0},
	"READ_WRITE":            {Args: 0},
	"GUARD_RAILS":           {Args: 0},
	"DISCRETE":              {Args: 0},
	"ROOT":                  {Args: 0},
	"CONSISTENT_EXCHANGE":   {Args: 0},
	"LAYOUT":                {Args: 1},
	"REF_MEMORY_SEGMENT":    {Args: 1},
	"STEP_SIZE":             {Args: 1},
	"CALIBRATION_ACCESS":    {Args: 1},
	"COMPARISON_QUANTITY":   {Args: 1},
	"MODEL_LINK":            {Args: 1},
	"ERROR_MASK":            {Args: 1},
	"ENCODING":              {Args: 1},
	"MONOTONY":              {Args: 1},
	"FIX_AXIS_PAR":          {Args: 3},
	"FIX_AXIS_PAR_DIST":     {Args: 3},
	"FIX_AXIS_PAR_LIST":     {Args: 0},
	"AXIS_PTS_REF":          {Args: 1},
	"CURVE_AXIS_REF":        {Args: 1},
	"MAX_GRAD":              {Args: 1},
	"STATUS_STRING_REF":     {Args: 1},
	"COMPU_TAB_REF":         {Args: 1},
	"REF_UNIT":              {Args: 1},
	"UNIT_CONVERSION":       {Args: 2},
	"SI_EXPONENTS":          {Args: 7},
	"COEFFS":                {Args: 6},
	"COEFFS_LINEAR":         {Args: 2},
	"FORMULA":               {Args: 1},
	"FORMULA_INV":           {Args: 1},
	"DEFAULT_VALUE":         {Args: 1},
	"DEFAULT_VALUE_NUMERIC": {Args: 1},
	"FUNCTION_VERSION":      {Args: 1},
	"ANNOTATION":            {Args: 0},
	"ANNOTATION_LABEL":      {Args: 1},
	"ANNOTATION_ORIGIN":     {Args: 1},
	"ANNOTATION_TEXT":       {Args: 0, List: true},

	// name lists
	"DEPENDENT_CHARACTERISTIC": {Args: 1, List: true},
	"VIRTUAL_CHARACTERISTIC":   {Args: 1, List: true},
	"MAP_LIST":                 {Args: 0, List: true},
	"VIRTUAL":                  {Args: 0, List: true},
	"FUNCTION_LIST":            {Args: 0, List: true},
	"DEF_CHARACTERISTIC":       {Args: 0, List: true},
	"REF_CHARACTERISTIC":       {Args: 0, List: true},
	"IN_MEASUREMENT":           {Args: 0, List: true},
	"OUT_MEASUREMENT":          {Args: 0, List: true},
	"LOC_MEASUREMENT":          {Args: 0, List: true},
	"SUB_FUNCTION":             {Args: 0, List: true},
	"SUB_GROUP":                {Args: 0, List: true},
	"REF_MEASUREMENT":          {Args: 0, List: true},
	"REF_GROUP":                {Args: 0, List: true},
	"TRANSFORMER_IN_OBJECTS":   {Args: 0, List: true},
	"TRANSFORMER_OUT_OBJECTS":  {Args: 0, List: true},

	// record layout components
	"FNC_VALUES":             {Args: loose},
	"IDENTIFICATION":         {Args: loose},
	"RESERVED":               {Args: loose},
	"RIP_ADDR_W":             {Args: loose},
	"STATIC_RECORD_LAYOUT":   {Args: 0},
	"STATIC_ADDRESS_OFFSETS": {Args: 0},
}

func init() {
	for _, prefix := range []string{
		"AXIS_PTS_", "AXIS_RESCALE_", "DIST_OP_", "FIX_NO_AXIS_PTS_", "NO_AXIS_PTS_",
		"NO_RESCALE_", "OFFSET_", "RIP_ADDR_", "SHIFT_OP_", "SRC_ADDR_",
	} {
		for _, axis := range []string{"X", "Y", "Z", "4", "5"} {
			schema[prefix+axis] = Spec{Args: loose}
		}
	}
}

// Lookup returns the layout of keyword kw. Unknown keywords get a loose
// layout.
func Lookup(kw string) (Spec, bool) {
	s, ok := schema[kw]
	if !ok {
		return Spec{Args: loose}, false
	}
	return s, true
}

func known(kw string) bool {
	_, ok := schema[kw]
	return ok
}
