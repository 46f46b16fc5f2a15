package codegen

// prelude is the runtime library emitted at the top of every generated
// script. It implements the canonical value encoding (see the encode
// package: T;/L<n>;/M<n>;/F; tags, unit-separator fields, backslash
// escapes), the built-in functions, and the dispatch failure path. The Go
// encoder and this shell text implement the same scheme and must not drift.
const prelude = `__HASH_US=$'\x1f'
__HASH_STATUS=0
__hash_ret=

__hash_escape() {
  local v=$1
  v=${v//\\/\\\\}
  v=${v//$__HASH_US/\\u}
  printf '%s' "$v"
}

__hash_unescape() {
  local v=$1 out= i c
  for ((i = 0; i < ${#v}; i++)); do
    c=${v:i:1}
    if [[ $c == \\ ]]; then
      ((i++))
      c=${v:i:1}
      if [[ $c == u ]]; then out+=$__HASH_US; else out+=$c; fi
    else
      out+=$c
    fi
  done
  printf '%s' "$out"
}

__hash_is_container() {
  [[ $1 =~ ^[LM][0-9]+\; || $1 == "F;"* ]]
}

__hash_enc_elem() {
  local v=$1
  __hash_is_container "$v" || v="T;$v"
  __hash_escape "$v"
}

__hash_dec_elem() {
  local v
  v=$(__hash_unescape "$1")
  [[ $v == "T;"* ]] && v=${v#T;}
  printf '%s' "$v"
}

__hash_list() {
  local out="L$#;" sep= e
  for e in "$@"; do
    out+="$sep$(__hash_enc_elem "$e")"
    sep=$__HASH_US
  done
  printf '%s' "$out"
}

__hash_map_new() {
  local n=$(($# / 2)) out sep= k v
  out="M$n;"
  while (($# >= 2)); do
    k=$1 v=$2
    shift 2
    out+="$sep$(__hash_escape "$k")$__HASH_US$(__hash_enc_elem "$v")"
    sep=$__HASH_US
  done
  printf '%s' "$out"
}

__hash_closure() {
  local out="F;$1" e
  shift
  for e in "$@"; do
    out+="$__HASH_US$(__hash_enc_elem "$e")"
  done
  printf '%s' "$out"
}

# __hash_fields decodes a container payload into __HASH_FIELDS. For maps the
# fields alternate key, value.
__hash_fields() {
  local v=$1 n payload rest field
  n=${v%%;*}
  n=${n#?}
  payload=${v#*;}
  __HASH_FIELDS=()
  [[ $n == 0 || -z $payload && $n == "" ]] && return 0
  rest=$payload
  while :; do
    field=${rest%%"$__HASH_US"*}
    __HASH_FIELDS+=("$(__hash_dec_elem "$field")")
    [[ $rest == *"$__HASH_US"* ]] || break
    rest=${rest#*"$__HASH_US"}
  done
}

__hash_len() {
  local v=$1 n
  if __hash_is_container "$v"; then
    n=${v%%;*}
    __hash_ret=${n#?}
  else
    __hash_ret=${#v}
  fi
}

__hash_count() {
  __hash_len "$1"
  printf '%s' "$__hash_ret"
}

# __hash_at walks an access path: h (head), t (tail), i:N (index), k:KEY.
__hash_at() {
  local v=$1 step
  shift
  for step in "$@"; do
    case $step in
    h)
      __hash_fields "$v"
      v=${__HASH_FIELDS[0]}
      ;;
    t)
      __hash_fields "$v"
      v=$(__hash_list "${__HASH_FIELDS[@]:1}")
      ;;
    i:*)
      __hash_fields "$v"
      v=${__HASH_FIELDS[${step#i:}]}
      ;;
    k:*)
      __hash_map_get "$v" "${step#k:}"
      v=$__hash_ret
      ;;
    esac
  done
  printf '%s' "$v"
}

__hash_map_get() {
  local m=$1 key=$2 i
  __hash_fields "$m"
  for ((i = 0; i < ${#__HASH_FIELDS[@]}; i += 2)); do
    if [[ ${__HASH_FIELDS[i]} == "$key" ]]; then
      __hash_ret=${__HASH_FIELDS[i + 1]}
      return 0
    fi
  done
  __hash_ret=
  return 1
}

# __hash_has doubles as a predicate (exit status) and a value (true/false).
__hash_has() {
  if __hash_map_get "$1" "$2"; then
    __hash_ret=true
    return 0
  fi
  __hash_ret=false
  return 1
}

__hash_get() {
  __hash_map_get "$1" "$2" || __hash_ret=
}

__hash_keys() {
  local i
  local -a ks=()
  __hash_fields "$1"
  for ((i = 0; i < ${#__HASH_FIELDS[@]}; i += 2)); do
    ks+=("${__HASH_FIELDS[i]}")
  done
  __hash_ret=$(__hash_list ${ks[@]+"${ks[@]}"})
}

__hash_values() {
  local i
  local -a vs=()
  __hash_fields "$1"
  for ((i = 1; i < ${#__HASH_FIELDS[@]}; i += 2)); do
    vs+=("${__HASH_FIELDS[i]}")
  done
  __hash_ret=$(__hash_list ${vs[@]+"${vs[@]}"})
}

__hash_push() {
  __hash_fields "$1"
  __hash_ret=$(__hash_list ${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"} "$2")
}

__hash_nth() {
  __hash_fields "$1"
  __hash_ret=${__HASH_FIELDS[$2]}
}

__hash_reverse() {
  local i
  local -a out=()
  __hash_fields "$1"
  for ((i = ${#__HASH_FIELDS[@]} - 1; i >= 0; i--)); do
    out+=("${__HASH_FIELDS[i]}")
  done
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

__hash_map() {
  local f=$1 e
  local -a out=()
  __hash_fields "$2"
  for e in ${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"}; do
    __hash_apply "$f" "$e"
    out+=("$__hash_ret")
  done
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

__hash_filter() {
  local f=$1 e
  local -a out=()
  __hash_fields "$2"
  for e in ${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"}; do
    __hash_apply "$f" "$e"
    [[ $__hash_ret == true ]] && out+=("$e")
  done
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

# __hash_apply invokes a function value: a closure record or a bare
# procedure name. Closure captures become the leading arguments.
__hash_apply() {
  local f=$1 payload proc rest field
  shift
  if [[ $f == "F;"* ]]; then
    payload=${f#F;}
    proc=${payload%%"$__HASH_US"*}
    local -a caps=()
    if [[ $payload == *"$__HASH_US"* ]]; then
      rest=${payload#*"$__HASH_US"}
      while :; do
        field=${rest%%"$__HASH_US"*}
        caps+=("$(__hash_dec_elem "$field")")
        [[ $rest == *"$__HASH_US"* ]] || break
        rest=${rest#*"$__HASH_US"}
      done
    fi
    "$proc" ${caps[@]+"${caps[@]}"} "$@"
  else
    "$f" "$@"
  fi
}

__hash_range() {
  local start=$1 second=$2 end=$3 step i
  if [[ -n $second ]]; then
    step=$((second - start))
  elif ((start <= end)); then
    step=1
  else
    step=-1
  fi
  local -a out=()
  if ((step > 0)); then
    for ((i = start; i <= end; i += step)); do out+=("$i"); done
  elif ((step < 0)); then
    for ((i = start; i >= end; i += step)); do out+=("$i"); done
  fi
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
  printf '%s' "$__hash_ret"
}

__hash_slice() {
  local i
  local -a out=()
  __hash_fields "$1"
  for ((i = $2; i <= $3 && i < ${#__HASH_FIELDS[@]}; i++)); do
    ((i < 0)) && continue
    out+=("${__HASH_FIELDS[i]}")
  done
  printf '%s' "$(__hash_list ${out[@]+"${out[@]}"})"
}

__hash_lines() {
  local -a out=()
  local line
  while IFS= read -r line; do out+=("$line"); done <<<"$1"
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

__hash_words() {
  local -a out=()
  local w
  for w in $1; do out+=("$w"); done
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

__hash_join() {
  local sep=${2- } out= first=1 e
  __hash_fields "$1"
  for e in ${__HASH_FIELDS[@]+"${__HASH_FIELDS[@]}"}; do
    if ((first)); then
      out=$e
      first=0
    else
      out+="$sep$e"
    fi
  done
  __hash_ret=$out
}

__hash_split() {
  local text=$1 sep=$2 rest field
  local -a out=()
  rest=$text
  while :; do
    field=${rest%%"$sep"*}
    out+=("$field")
    [[ $rest == *"$sep"* ]] || break
    rest=${rest#*"$sep"}
  done
  __hash_ret=$(__hash_list ${out[@]+"${out[@]}"})
}

__hash_print() {
  local IFS=' '
  printf '%s\n' "$*"
  __hash_ret=
}

__hash_read() {
  IFS= read -r __hash_ret
}

__hash_exists() {
  if [[ -e $1 ]]; then
    __hash_ret=true
    return 0
  fi
  __hash_ret=false
  return 1
}

# __hash_arith evaluates one binary arithmetic step: shell arithmetic for
# integers, bc for anything fractional.
__hash_arith() {
  local a=$1 op=$2 b=$3
  if [[ $a =~ ^-?[0-9]+$ && $b =~ ^-?[0-9]+$ ]]; then
    printf '%s' "$((a $op b))"
  else
    printf '%s' "$(bc -l <<<"$a $op $b")"
  fi
}

# __hash_cmp compares two values, numerically when both are numbers: shell
# arithmetic for integers, bc only for fractional operands.
__hash_cmp() {
  local a=$1 op=$2 b=$3
  if [[ $a =~ ^-?[0-9]+$ && $b =~ ^-?[0-9]+$ ]]; then
    (( a $op b ))
    return
  fi
  if [[ $a =~ ^-?[0-9]+([.][0-9]+)?$ && $b =~ ^-?[0-9]+([.][0-9]+)?$ ]]; then
    [[ $(bc -l <<<"$a $op $b") == 1 ]]
    return
  fi
  case $op in
  ==) [[ $a == "$b" ]] ;;
  !=) [[ $a != "$b" ]] ;;
  "<") [[ $a < $b ]] ;;
  ">") [[ $a > $b ]] ;;
  "<=") [[ $a == "$b" || $a < $b ]] ;;
  ">=") [[ $a == "$b" || $a > $b ]] ;;
  esac
}

__hash_nomatch() {
  printf 'hash: no clause of %s matches\n' "$1" >&2
  exit 1
}
`
